package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-checkout/internal/checkout"
)

// TaskEnqueuer is the subset of *asynq.Client used by Submitter.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Submitter validates batch requests, records them as queued and enqueues
// the pricing task.
type Submitter struct {
	client   TaskEnqueuer
	store    *Store
	maxRetry int
	timeout  time.Duration
	validate *validator.Validate
}

// NewSubmitter builds a Submitter. A negative maxRetry selects 3 retries;
// zero disables retries.
func NewSubmitter(client TaskEnqueuer, store *Store, maxRetry int) *Submitter {
	if maxRetry < 0 {
		maxRetry = 3
	}
	return &Submitter{
		client:   client,
		store:    store,
		maxRetry: maxRetry,
		timeout:  5 * time.Minute,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Submit stores req as a queued batch and enqueues it. The batch id doubles
// as the asynq task id so a task is never enqueued twice.
func (s *Submitter) Submit(ctx context.Context, req Request) (Batch, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return Batch{}, checkout.AsValidationError(err)
	}
	b := Batch{
		ID:           uuid.NewString(),
		Status:       StatusQueued,
		Transactions: len(req.Transactions),
	}
	if err := s.store.Save(ctx, b); err != nil {
		return Batch{}, fmt.Errorf("batch: save: %w", err)
	}
	task, err := NewQuoteBatchTask(b.ID, req.Transactions)
	if err != nil {
		return Batch{}, err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.TaskID(b.ID),
		asynq.Queue(Queue),
		asynq.MaxRetry(s.maxRetry),
		asynq.Timeout(s.timeout),
		asynq.Retention(s.store.TTL()),
	)
	if err != nil {
		b.Status = StatusFailed
		b.Error = "enqueue failed"
		_ = s.store.Save(ctx, b)
		return Batch{}, fmt.Errorf("batch: enqueue: %w", err)
	}
	return s.store.Load(ctx, b.ID)
}
