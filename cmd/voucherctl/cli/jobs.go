package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledgerdesk/internal/events"
	"github.com/odyssey-erp/ledgerdesk/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if redisAddr == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerCleanup enqueues an idempotency key cleanup.
func (c *JobsCLI) TriggerCleanup(ctx context.Context, retention time.Duration) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := jobs.NewIdempotencyCleanupTask(retention)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// Republish re-enqueues a posted-voucher event, e.g. after a broker outage
// exhausted the original task's retries.
func (c *JobsCLI) Republish(ctx context.Context, evt events.VoucherPosted) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	if evt.TransactionID == "" {
		return nil, errors.New("jobs cli: event has no transaction id")
	}
	task, err := jobs.NewVoucherPostedTask(evt)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.TaskID(fmt.Sprintf("%s:%s:%d", jobs.TaskVoucherPosted, evt.TransactionID, time.Now().Unix())))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	cmd.PersistentFlags().String("redis-addr", envOr("REDIS_ADDR", "127.0.0.1:6379"), "Redis address of the job queue")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Show default queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJobsCLI(cmd, func(c *JobsCLI) error {
				stats, err := c.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd, stats)
			})
		},
	}

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Enqueue an idempotency key cleanup",
		RunE: func(cmd *cobra.Command, _ []string) error {
			retention, _ := cmd.Flags().GetDuration("retention")
			return withJobsCLI(cmd, func(c *JobsCLI) error {
				info, err := c.TriggerCleanup(cmd.Context(), retention)
				if err != nil {
					return err
				}
				logger(cmd).Info("cleanup enqueued", "task_id", info.ID)
				return nil
			})
		},
	}
	cleanup.Flags().Duration("retention", 0, "Keys older than this are removed (default: worker setting)")

	republish := &cobra.Command{
		Use:   "republish FILE",
		Short: "Re-enqueue a posted-voucher event from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var evt events.VoucherPosted
			if err := json.Unmarshal(raw, &evt); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			return withJobsCLI(cmd, func(c *JobsCLI) error {
				info, err := c.Republish(cmd.Context(), evt)
				if err != nil {
					return err
				}
				logger(cmd).Info("event enqueued", "task_id", info.ID, "transaction_id", evt.TransactionID)
				return nil
			})
		},
	}

	cmd.AddCommand(inspect, cleanup, republish)
	return cmd
}

func withJobsCLI(cmd *cobra.Command, fn func(*JobsCLI) error) error {
	addr, _ := cmd.Flags().GetString("redis-addr")
	c, err := NewJobsCLI(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
