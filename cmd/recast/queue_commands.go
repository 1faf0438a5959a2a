package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"recast/internal/queue"
	"recast/internal/recording"
)

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid job id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List queue jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := ctx.openService()
			if err != nil {
				return err
			}
			defer cleanup()

			var jobs []*queue.Job
			switch strings.ToLower(statusFlag) {
			case "", "dead":
				jobs, err = svc.DeadJobs(cmd.Context())
			default:
				return fmt.Errorf("unsupported status filter %q (only dead jobs are listable)", statusFlag)
			}
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No dead jobs")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					fmt.Sprintf("%d", job.ID),
					string(job.Stage),
					job.RecordingID,
					fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
					job.LastError,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Job", "Stage", "Recording", "Attempts", "Last error"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "dead", "Job status to list")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Return dead jobs to the queue (all of them when no IDs given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := ctx.openService()
			if err != nil {
				return err
			}
			defer cleanup()

			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			count, err := svc.RetryDead(cmd.Context(), ids...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retried %d job(s)\n", count)
			return nil
		},
	}
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show recording and queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := ctx.openService()
			if err != nil {
				return err
			}
			defer cleanup()

			overview, err := svc.SystemOverview(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			recRows := make([][]string, 0, len(overview.Recordings))
			for _, status := range []recording.Status{
				recording.StatusUploaded,
				recording.StatusProcessing,
				recording.StatusDraftReady,
				recording.StatusCompleted,
				recording.StatusFailed,
			} {
				if count, ok := overview.Recordings[status]; ok {
					recRows = append(recRows, []string{string(status), fmt.Sprintf("%d", count)})
				}
			}
			if len(recRows) > 0 {
				fmt.Fprintln(out, renderTable([]string{"Recording status", "Count"}, recRows,
					[]columnAlignment{alignLeft, alignRight}))
			}

			jobRows := make([][]string, 0, len(overview.Jobs))
			for _, status := range []queue.JobStatus{
				queue.JobPending, queue.JobActive, queue.JobCompleted, queue.JobDead,
			} {
				if count, ok := overview.Jobs[status]; ok {
					jobRows = append(jobRows, []string{string(status), fmt.Sprintf("%d", count)})
				}
			}
			if len(jobRows) > 0 {
				fmt.Fprintln(out, renderTable([]string{"Job status", "Count"}, jobRows,
					[]columnAlignment{alignLeft, alignRight}))
			}
			return nil
		},
	}
}
