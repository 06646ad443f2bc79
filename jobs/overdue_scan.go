package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fieldserve/fieldserve/internal/billing/invoices"
)

// OverdueScanJob runs the periodic sweep that marks unpaid invoices past
// their due date as OVERDUE and queues customer notices.
type OverdueScanJob struct {
	Invoices *invoices.Service
	Logger   *slog.Logger
	clock    func() time.Time
}

// NewOverdueScanJob initialises the sweep handler.
func NewOverdueScanJob(service *invoices.Service, logger *slog.Logger) *OverdueScanJob {
	return &OverdueScanJob{
		Invoices: service,
		Logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one sweep.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Invoices == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 500
	}

	start := j.clock()
	flipped, err := j.Invoices.SweepOverdue(ctx, start, payload.Limit)
	if err != nil {
		j.Logger.Error("overdue sweep failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("completed overdue sweep",
		slog.Int("flipped", flipped),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
