package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"recast/internal/api"
	"recast/internal/config"
	"recast/internal/recording"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var eventsFlag string
	var languageFlag string
	var idFlag string

	cmd := &cobra.Command{
		Use:   "add <video-path>",
		Short: "Register an uploaded recording and start processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := ctx.openService()
			if err != nil {
				return err
			}
			defer cleanup()

			videoPath, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			eventsPath := eventsFlag
			if eventsPath != "" {
				if eventsPath, err = config.ExpandPath(eventsPath); err != nil {
					return err
				}
			}

			rec, err := svc.CreateRecording(cmd.Context(), api.CreateRecordingRequest{
				ID:             idFlag,
				VideoPath:      videoPath,
				EventsPath:     eventsPath,
				TargetLanguage: languageFlag,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Recording %s registered (%s)\n", rec.ID, rec.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&eventsFlag, "events", "", "Path to the interaction events JSON file")
	cmd.Flags().StringVar(&languageFlag, "language", "", "Target narration language (BCP 47 tag)")
	cmd.Flags().StringVar(&idFlag, "id", "", "Recording identifier (generated when omitted)")
	return cmd
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var languageFlag string

	cmd := &cobra.Command{
		Use:   "process <recording-id>",
		Short: "Request AI processing for a reviewed draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := ctx.openService()
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := svc.RequestProcessing(cmd.Context(), args[0], languageFlag)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Processing requested for %s (language %s)\n",
				rec.ID, rec.TargetLanguage)
			return nil
		},
	}

	cmd.Flags().StringVar(&languageFlag, "language", "", "Target narration language (BCP 47 tag)")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <recording-id>",
		Short: "Show a recording's current state and queue jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := ctx.openService()
			if err != nil {
				return err
			}
			defer cleanup()

			status, err := svc.RecordingStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rec := status.Recording
			rows := [][]string{
				{"Status", colorizeStatus(out, string(rec.Status))},
				{"Step", string(rec.CurrentStep)},
				{"Language", rec.TargetLanguage},
				{"Video", rec.VideoPath},
			}
			if rec.AudioPath != "" {
				rows = append(rows, []string{"Audio", rec.AudioPath})
			}
			if rec.TranscriptPath != "" {
				rows = append(rows, []string{"Transcript", rec.TranscriptPath})
			}
			if rec.VoiceoverPath != "" {
				rows = append(rows, []string{"Voiceover", rec.VoiceoverPath})
			}
			if rec.ZoomedVideoPath != "" {
				rows = append(rows, []string{"Zoomed video", rec.ZoomedVideoPath})
			}
			if rec.FinalVideoPath != "" {
				rows = append(rows, []string{"Final video", rec.FinalVideoPath})
			}
			if rec.ErrorMessage != "" {
				rows = append(rows, []string{"Error", rec.ErrorMessage})
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))

			if len(status.Jobs) > 0 {
				jobRows := make([][]string, 0, len(status.Jobs))
				for _, job := range status.Jobs {
					jobRows = append(jobRows, []string{
						fmt.Sprintf("%d", job.ID),
						string(job.Stage),
						string(job.Status),
						fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
						job.LastError,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Job", "Stage", "Status", "Attempts", "Last error"},
					jobRows,
					[]columnAlignment{alignRight},
				))
			}
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := ctx.openService()
			if err != nil {
				return err
			}
			defer cleanup()

			var statuses []recording.Status
			if statusFlag != "" {
				statuses = append(statuses, recording.Status(strings.ToLower(statusFlag)))
			}
			recs, err := svc.ListRecordings(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recordings")
				return nil
			}

			rows := make([][]string, 0, len(recs))
			for _, rec := range recs {
				rows = append(rows, []string{
					rec.ID,
					colorizeStatus(cmd.OutOrStdout(), string(rec.Status)),
					string(rec.CurrentStep),
					rec.TargetLanguage,
					rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Status", "Step", "Language", "Updated"},
				rows, nil,
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by recording status")
	return cmd
}
