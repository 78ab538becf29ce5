package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// NotificationWorker drains notification jobs. Outbound delivery (email,
// push) belongs to another system; this worker is the hand-off point and
// records each notification in the structured log.
type NotificationWorker struct {
	river.WorkerDefaults[NotificationJobArgs]
	logger *slog.Logger
}

// NewNotificationWorker creates a worker logging to logger, or to the
// default logger when nil.
func NewNotificationWorker(logger *slog.Logger) *NotificationWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationWorker{logger: logger}
}

// Work processes a single notification job.
func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationJobArgs]) error {
	w.logger.InfoContext(ctx, "notification emitted",
		"type", job.Args.Type,
		"listing_id", job.Args.ListingID,
		"application_id", job.Args.ApplicationID,
		"actor_id", job.Args.ActorID,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
