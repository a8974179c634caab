package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledgerdesk/internal/events"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskVoucherPosted publishes the posted-voucher event to the broker.
	TaskVoucherPosted = "voucher:posted"
	// TaskIdempotencyCleanup purges expired posting idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// CleanupPayload tunes a cleanup run. A zero retention uses the job default.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewVoucherPostedTask builds the publish task for a posted voucher. The
// task id is derived from the transaction so a re-enqueue is a no-op.
func NewVoucherPostedTask(evt events.VoucherPosted) (*asynq.Task, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVoucherPosted, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(TaskVoucherPosted+":"+evt.TransactionID),
		asynq.MaxRetry(10),
	), nil
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
