package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"khabar/features/job"
	"khabar/internal/middleware"
)

// FailureLedger stores failed fetches as replayable fetch tasks.
type FailureLedger struct {
	jobs JobRecorder
}

func NewFailureLedger(jobs JobRecorder) *FailureLedger {
	return &FailureLedger{jobs: jobs}
}

func (l *FailureLedger) RecordFailure(ctx context.Context, url, handler string, cause error) {
	l.record(ctx, FetchTask{URL: url}, handler, cause)
}

func (l *FailureLedger) record(ctx context.Context, task FetchTask, handler string, cause error) {
	if task.CorrelationID == "" {
		if id := middleware.GetCorrelationID(ctx); id != "unknown" {
			task.CorrelationID = id
		}
	}
	payload, err := json.Marshal(task)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal fetch task", "url", task.URL, "error", err)
		return
	}
	l.jobs.Record(ctx, &job.Job{
		URL:     task.URL,
		Handler: handler,
		Payload: payload,
		Error:   cause.Error(),
		Retries: task.Attempt,
	})
}
