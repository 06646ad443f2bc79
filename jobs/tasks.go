// Package jobs holds the background task handlers and the asynq worker
// wiring for the billing engine.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOverdueScan flips unpaid invoices past their due date to OVERDUE.
	TaskOverdueScan = "billing:overdue_scan"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "billing:idempotency_cleanup"
)

// OverdueScanPayload bounds one sweep.
type OverdueScanPayload struct {
	Limit int `json:"limit"`
}

// NewOverdueScanTask constructs the sweep task.
func NewOverdueScanTask(limit int) (*asynq.Task, error) {
	data, err := json.Marshal(OverdueScanPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, data), nil
}

// IdempotencyCleanupPayload configures key retention.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
