package batch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-checkout/internal/checkout"
	"github.com/noah-isme/backend-checkout/internal/common"
)

// ErrNotFound is returned when no batch is stored under an id.
var ErrNotFound = errors.New("batch: not found")

// Status tracks a batch through the worker.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Outcome is the result of pricing one transaction. Exactly one of Quote and
// Error is set.
type Outcome struct {
	Index     int               `json:"index"`
	Reference string            `json:"reference,omitempty"`
	Quote     *checkout.Quote   `json:"quote,omitempty"`
	Error     *common.ErrorBody `json:"error,omitempty"`
}

// Batch is the stored state of a submission.
type Batch struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Transactions int       `json:"transactions"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	Outcomes     []Outcome `json:"outcomes,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store keeps batch state in Redis for a fixed TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewStore constructs a Store. A non-positive ttl defaults to one hour.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{client: client, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// TTL reports how long batch state is retained.
func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) key(id string) string { return "batch:" + id }

// Save writes b, stamping UpdatedAt.
func (s *Store) Save(ctx context.Context, b Batch) error {
	if s == nil || s.client == nil {
		return errors.New("batch: redis client not configured")
	}
	b.UpdatedAt = s.now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = b.UpdatedAt
	}
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(b.ID), data, s.ttl).Err()
}

// Load reads the batch stored under id.
func (s *Store) Load(ctx context.Context, id string) (Batch, error) {
	if s == nil || s.client == nil {
		return Batch{}, errors.New("batch: redis client not configured")
	}
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return Batch{}, err
	}
	return b, nil
}
