package queue_test

import (
	"context"
	"testing"
	"time"

	"recast/internal/queue"
	"recast/internal/testsupport"
)

func TestEnqueueAndDequeue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	job, created, err := store.Enqueue(ctx, queue.StageExtractAudio, "rec-1", "", "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !created {
		t.Fatal("expected new job")
	}
	if job.Status != queue.JobPending || job.DedupKey != "extract_audio:rec-1" {
		t.Fatalf("unexpected job: %#v", job)
	}

	claimed, err := store.Dequeue(ctx, queue.StageExtractAudio)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected to claim job %d, got %#v", job.ID, claimed)
	}
	if claimed.Status != queue.JobActive || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed state: %#v", claimed)
	}

	// Nothing else pending for this stage.
	next, err := store.Dequeue(ctx, queue.StageExtractAudio)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if next != nil {
		t.Fatalf("expected empty queue, got %#v", next)
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	first, created, err := store.Enqueue(ctx, queue.StageTranscribe, "rec-1", "", "")
	if err != nil || !created {
		t.Fatalf("first Enqueue failed: created=%v err=%v", created, err)
	}

	second, created, err := store.Enqueue(ctx, queue.StageTranscribe, "rec-1", "", "")
	if err != nil {
		t.Fatalf("second Enqueue failed: %v", err)
	}
	if created {
		t.Fatal("duplicate enqueue must be a no-op")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing job %d, got %d", first.ID, second.ID)
	}

	// Dedup also holds while the job is active.
	if _, err := store.Dequeue(ctx, queue.StageTranscribe); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	_, created, err = store.Enqueue(ctx, queue.StageTranscribe, "rec-1", "", "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if created {
		t.Fatal("dedup must cover active jobs")
	}

	// Once completed, the key is free again.
	if err := store.Complete(ctx, first.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	_, created, err = store.Enqueue(ctx, queue.StageTranscribe, "rec-1", "", "")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !created {
		t.Fatal("completed job must not block a new enqueue")
	}
}

func TestAIDedupKeysDiffer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	keyA := queue.AIDedupKey("rec-1", time.Unix(0, 1))
	keyB := queue.AIDedupKey("rec-1", time.Unix(0, 2))
	if keyA == keyB {
		t.Fatal("re-processing submissions must not share a dedup key")
	}

	_, created, err := store.Enqueue(ctx, queue.StageAIProcess, "rec-1", "", keyA)
	if err != nil || !created {
		t.Fatalf("Enqueue failed: created=%v err=%v", created, err)
	}
	_, created, err = store.Enqueue(ctx, queue.StageAIProcess, "rec-1", "", keyB)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !created {
		t.Fatal("distinct submission keys must both enqueue")
	}
}

func TestFailReschedulesWithBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	if _, _, err := store.Enqueue(ctx, queue.StageExtractAudio, "rec-1", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := store.Dequeue(ctx, queue.StageExtractAudio)
	if err != nil || job == nil {
		t.Fatalf("Dequeue failed: job=%v err=%v", job, err)
	}

	before := time.Now().UTC()
	if err := store.Fail(ctx, job, "ffmpeg exited 1", true); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	updated, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.JobPending {
		t.Fatalf("expected pending after retryable failure, got %s", updated.Status)
	}
	if updated.LastError != "ffmpeg exited 1" {
		t.Fatalf("unexpected last error: %q", updated.LastError)
	}
	if !updated.NextRunAt.After(before) {
		t.Fatalf("expected next run in the future, got %v", updated.NextRunAt)
	}

	// The delayed job is not due yet.
	claimed, err := store.Dequeue(ctx, queue.StageExtractAudio)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if claimed != nil {
		t.Fatalf("delayed job must not be dequeued early: %#v", claimed)
	}
}

func TestFailParksDeadAfterMaxAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(1))
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	if _, _, err := store.Enqueue(ctx, queue.StageMerge, "rec-1", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := store.Dequeue(ctx, queue.StageMerge)
	if err != nil || job == nil {
		t.Fatalf("Dequeue failed: job=%v err=%v", job, err)
	}

	if err := store.Fail(ctx, job, "mux failed", true); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	updated, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.JobDead {
		t.Fatalf("expected dead after attempt ceiling, got %s", updated.Status)
	}
}

func TestFailParksDeadImmediatelyWhenNotRetryable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	if _, _, err := store.Enqueue(ctx, queue.StageExtractAudio, "rec-1", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := store.Dequeue(ctx, queue.StageExtractAudio)
	if err != nil || job == nil {
		t.Fatalf("Dequeue failed: job=%v err=%v", job, err)
	}

	if err := store.Fail(ctx, job, "video container is corrupt", false); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	updated, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.JobDead {
		t.Fatalf("non-retryable failure must park dead, got %s", updated.Status)
	}
	if updated.Attempts != 1 {
		t.Fatalf("unexpected attempts: %d", updated.Attempts)
	}
}

func TestRetryDeadReturnsJobToPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	if _, _, err := store.Enqueue(ctx, queue.StageApplyZoom, "rec-1", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := store.Dequeue(ctx, queue.StageApplyZoom)
	if err != nil || job == nil {
		t.Fatalf("Dequeue failed: job=%v err=%v", job, err)
	}
	if err := store.Fail(ctx, job, "render crashed", false); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	dead, err := store.JobsByStatus(ctx, queue.JobDead)
	if err != nil {
		t.Fatalf("JobsByStatus failed: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("expected 1 dead job, got %d", len(dead))
	}

	retried, err := store.RetryDead(ctx, job.ID)
	if err != nil {
		t.Fatalf("RetryDead failed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected 1 retried job, got %d", retried)
	}

	claimed, err := store.Dequeue(ctx, queue.StageApplyZoom)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected retried job to be claimable: %#v", claimed)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("retry must reset the attempt counter: %d", claimed.Attempts)
	}
}

func TestRetryDeadSkipsHeldDedupKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	if _, _, err := store.Enqueue(ctx, queue.StageMerge, "rec-1", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	dead, err := store.Dequeue(ctx, queue.StageMerge)
	if err != nil || dead == nil {
		t.Fatalf("Dequeue failed: job=%v err=%v", dead, err)
	}
	if err := store.Fail(ctx, dead, "mux crashed", false); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	// A dead job frees its dedup key, so the same work can be re-enqueued.
	fresh, inserted, err := store.Enqueue(ctx, queue.StageMerge, "rec-1", "", "")
	if err != nil || !inserted {
		t.Fatalf("re-enqueue after dead failed: inserted=%v err=%v", inserted, err)
	}

	// While the fresh job holds the key, the dead one must stay parked.
	retried, err := store.RetryDead(ctx, dead.ID)
	if err != nil {
		t.Fatalf("RetryDead failed: %v", err)
	}
	if retried != 0 {
		t.Fatalf("retry must skip a held dedup key, retried %d", retried)
	}
	parked, err := store.GetByID(ctx, dead.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if parked.Status != queue.JobDead {
		t.Fatalf("expected job to stay dead, got %s", parked.Status)
	}

	if err := store.Complete(ctx, fresh.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	retried, err = store.RetryDead(ctx, dead.ID)
	if err != nil {
		t.Fatalf("RetryDead failed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected retry once the key is free, retried %d", retried)
	}
}

func TestReclaimStaleReturnsAbandonedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	if _, _, err := store.Enqueue(ctx, queue.StageTranscribe, "rec-1", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := store.Dequeue(ctx, queue.StageTranscribe)
	if err != nil || job == nil {
		t.Fatalf("Dequeue failed: job=%v err=%v", job, err)
	}

	// Cutoff in the past leaves the fresh heartbeat alone.
	reclaimed, err := store.ReclaimStale(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("fresh job must not be reclaimed, got %d", reclaimed)
	}

	// Cutoff after the heartbeat reclaims the abandoned job.
	reclaimed, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", reclaimed)
	}

	claimed, err := store.Dequeue(ctx, queue.StageTranscribe)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected reclaimed job to be claimable: %#v", claimed)
	}
}

func TestHeartbeatKeepsJobAlive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	if _, _, err := store.Enqueue(ctx, queue.StageMerge, "rec-1", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := store.Dequeue(ctx, queue.StageMerge)
	if err != nil || job == nil {
		t.Fatalf("Dequeue failed: job=%v err=%v", job, err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := store.UpdateHeartbeat(ctx, job.ID); err != nil {
		t.Fatalf("UpdateHeartbeat failed: %v", err)
	}

	updated, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.LastHeartbeat == nil || !updated.LastHeartbeat.After(*job.LastHeartbeat) {
		t.Fatalf("expected refreshed heartbeat: %#v", updated)
	}
}

func TestSweepEnforcesRetention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	for _, id := range []string{"rec-1", "rec-2", "rec-3"} {
		if _, _, err := store.Enqueue(ctx, queue.StageExtractAudio, id, "", ""); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		job, err := store.Dequeue(ctx, queue.StageExtractAudio)
		if err != nil || job == nil {
			t.Fatalf("Dequeue failed: job=%v err=%v", job, err)
		}
		if err := store.Complete(ctx, job.ID); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
	}

	// Count bound: keep the two newest finished jobs.
	removed, err := store.Sweep(ctx, 2, 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 swept job, got %d", removed)
	}

	// Age bound: a cutoff in the future sweeps the rest.
	removed, err = store.Sweep(ctx, 0, -time.Second)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 swept jobs, got %d", removed)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.JobCompleted] != 0 {
		t.Fatalf("unexpected stats after sweep: %#v", stats)
	}
}

func TestSweepLeavesPendingAndActiveAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	if _, _, err := store.Enqueue(ctx, queue.StageExtractAudio, "rec-1", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, _, err := store.Enqueue(ctx, queue.StageTranscribe, "rec-2", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := store.Dequeue(ctx, queue.StageTranscribe); err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	removed, err := store.Sweep(ctx, 0, -time.Second)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 0 {
		t.Fatalf("sweep must only touch finished jobs, removed %d", removed)
	}
}

func TestValidateTransitions(t *testing.T) {
	if err := queue.ValidateTransitions(); err != nil {
		t.Fatalf("transition table invalid: %v", err)
	}

	next, ok := queue.Successor(queue.StageExtractAudio)
	if !ok || next != queue.StageTranscribe {
		t.Fatalf("unexpected successor: %s %v", next, ok)
	}
	if _, ok := queue.Successor(queue.StageTranscribe); ok {
		t.Fatal("transcribe must be terminal")
	}
	if _, ok := queue.Successor(queue.StageMerge); ok {
		t.Fatal("merge must be terminal")
	}
}

func TestParseStage(t *testing.T) {
	stage, ok := queue.ParseStage(" Extract_Audio ")
	if !ok || stage != queue.StageExtractAudio {
		t.Fatalf("unexpected parse: %s %v", stage, ok)
	}
	if _, ok := queue.ParseStage("upload"); ok {
		t.Fatal("unknown stage must not parse")
	}
}

func TestJobsForRecording(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	ctx := context.Background()
	if _, _, err := store.Enqueue(ctx, queue.StageExtractAudio, "rec-1", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, _, err := store.Enqueue(ctx, queue.StageTranscribe, "rec-1", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, _, err := store.Enqueue(ctx, queue.StageExtractAudio, "rec-2", "", ""); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	jobs, err := store.JobsForRecording(ctx, "rec-1")
	if err != nil {
		t.Fatalf("JobsForRecording failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Stage != queue.StageTranscribe {
		t.Fatalf("expected newest first: %#v", jobs[0])
	}
}
