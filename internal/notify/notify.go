// Package notify enqueues customer-facing notifications for asynchronous
// delivery. Senders are best-effort: billing writes never fail because a
// notice could not be queued.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task types handled by the worker.
const (
	TaskInvoiceIssued  = "notify:invoice_issued"
	TaskInvoiceOverdue = "notify:invoice_overdue"
)

// InvoiceNotice is the payload for invoice lifecycle notifications.
type InvoiceNotice struct {
	CompanyID     int64   `json:"company_id"`
	InvoiceID     int64   `json:"invoice_id"`
	InvoiceNumber string  `json:"invoice_number"`
	CustomerID    int64   `json:"customer_id"`
	BalanceDue    float64 `json:"balance_due"`
	DueDate       string  `json:"due_date,omitempty"`
}

// Notifier sends invoice lifecycle notifications.
type Notifier interface {
	InvoiceIssued(ctx context.Context, notice InvoiceNotice) error
	InvoiceOverdue(ctx context.Context, notice InvoiceNotice) error
}

// QueueNotifier enqueues notifications onto the asynq task queue.
type QueueNotifier struct {
	client *asynq.Client
}

// NewQueueNotifier wraps an asynq client.
func NewQueueNotifier(client *asynq.Client) *QueueNotifier {
	return &QueueNotifier{client: client}
}

func (n *QueueNotifier) enqueue(ctx context.Context, taskType string, notice InvoiceNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %w", taskType, err)
	}
	task := asynq.NewTask(taskType, payload)
	_, err = n.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", taskType, err)
	}
	return nil
}

// InvoiceIssued queues an issued notice.
func (n *QueueNotifier) InvoiceIssued(ctx context.Context, notice InvoiceNotice) error {
	return n.enqueue(ctx, TaskInvoiceIssued, notice)
}

// InvoiceOverdue queues an overdue notice.
func (n *QueueNotifier) InvoiceOverdue(ctx context.Context, notice InvoiceNotice) error {
	return n.enqueue(ctx, TaskInvoiceOverdue, notice)
}

// Noop discards all notifications. Used in tests and when the queue is
// unavailable.
type Noop struct{}

func (Noop) InvoiceIssued(context.Context, InvoiceNotice) error  { return nil }
func (Noop) InvoiceOverdue(context.Context, InvoiceNotice) error { return nil }
