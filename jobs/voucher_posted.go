package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledgerdesk/internal/events"
	jobmetrics "github.com/odyssey-erp/ledgerdesk/internal/jobs"
)

// VoucherPostedJob forwards posted vouchers to the event broker.
type VoucherPostedJob struct {
	Publisher events.Publisher
	Topic     string
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewVoucherPostedJob wires dependencies for the publish handler.
func NewVoucherPostedJob(publisher events.Publisher, topic string, logger *slog.Logger, metrics *jobmetrics.Metrics) *VoucherPostedJob {
	if topic == "" {
		topic = events.TopicVouchersPosted
	}
	return &VoucherPostedJob{Publisher: publisher, Topic: topic, Logger: logger, Metrics: metrics}
}

// Handle processes TaskVoucherPosted tasks.
func (j *VoucherPostedJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Publisher == nil {
		return errors.New("voucher posted: publisher not configured")
	}
	var evt events.VoucherPosted
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	if evt.TransactionID == "" {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskVoucherPosted)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("transaction_id", evt.TransactionID), slog.String("voucher_type", evt.VoucherType))
	if err := j.Publisher.Publish(ctx, evt.Key(), evt); err != nil {
		resultErr = err
		logger.Error("publish voucher posted", slog.Any("error", err))
		return resultErr
	}
	j.Metrics.AddPublished(j.Topic, 1)
	logger.Info("voucher posted event published", slog.String("number", evt.Number))
	return resultErr
}

func (j *VoucherPostedJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
