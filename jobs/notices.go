package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/fieldserve/fieldserve/internal/notify"
)

// NoticeJob delivers queued invoice notices. Delivery currently logs the
// notice; the SMTP integration plugs in here.
type NoticeJob struct {
	Logger *slog.Logger
}

// NewNoticeJob initialises the notice handler.
func NewNoticeJob(logger *slog.Logger) *NoticeJob {
	return &NoticeJob{Logger: logger}
}

// HandleIssued processes issued notices.
func (j *NoticeJob) HandleIssued(ctx context.Context, t *asynq.Task) error {
	return j.deliver(t, "invoice issued")
}

// HandleOverdue processes overdue notices.
func (j *NoticeJob) HandleOverdue(ctx context.Context, t *asynq.Task) error {
	return j.deliver(t, "invoice overdue")
}

func (j *NoticeJob) deliver(t *asynq.Task, kind string) error {
	if j == nil || j.Logger == nil {
		return errors.New("notices: handler not configured")
	}
	var notice notify.InvoiceNotice
	if err := json.Unmarshal(t.Payload(), &notice); err != nil {
		return asynq.SkipRetry
	}
	j.Logger.Info("delivering notice",
		slog.String("kind", kind),
		slog.Int64("company_id", notice.CompanyID),
		slog.Int64("customer_id", notice.CustomerID),
		slog.String("invoice", notice.InvoiceNumber),
		slog.Float64("balance_due", notice.BalanceDue),
		slog.String("due_date", notice.DueDate),
	)
	return nil
}
