// Package receipt persists priced baskets so a quote can be looked up later.
package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no receipt has the requested id.
var ErrNotFound = errors.New("receipt not found")

// Receipt is a stored quote.
type Receipt struct {
	ID                 uuid.UUID       `json:"id"`
	Reference          string          `json:"reference,omitempty"`
	CatalogFingerprint string          `json:"catalogFingerprint"`
	Items              []string        `json:"items"`
	Total              decimal.Decimal `json:"total"`
	Result             json.RawMessage `json:"result"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// Store reads and writes receipts.
type Store interface {
	Insert(ctx context.Context, r Receipt) error
	Get(ctx context.Context, id uuid.UUID) (Receipt, error)
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps receipts in Postgres.
type PGStore struct {
	db DB
}

// NewPGStore wraps db, usually a *pgxpool.Pool.
func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

const insertReceipt = `INSERT INTO receipts (id, reference, catalog_fingerprint, items, total, result, created_at)
VALUES ($1::uuid, $2, $3, $4, $5::numeric, $6::jsonb, $7)`

// Insert stores r. CreatedAt defaults to now.
func (s *PGStore) Insert(ctx context.Context, r Receipt) error {
	if r.ID == uuid.Nil {
		return errors.New("receipt: id is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	items := r.Items
	if items == nil {
		items = []string{}
	}
	result := r.Result
	if len(result) == 0 {
		result = json.RawMessage("{}")
	}
	_, err := s.db.Exec(ctx, insertReceipt,
		r.ID.String(), r.Reference, r.CatalogFingerprint, items, r.Total.String(), string(result), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

const selectReceipt = `SELECT id::text, reference, catalog_fingerprint, items, total::text, result::text, created_at
FROM receipts WHERE id = $1::uuid`

// Get loads the receipt with id.
func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (Receipt, error) {
	var (
		r       Receipt
		rawID   string
		total   string
		payload string
	)
	err := s.db.QueryRow(ctx, selectReceipt, id.String()).
		Scan(&rawID, &r.Reference, &r.CatalogFingerprint, &r.Items, &total, &payload, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrNotFound
		}
		return Receipt{}, fmt.Errorf("get receipt: %w", err)
	}
	if r.ID, err = uuid.Parse(rawID); err != nil {
		return Receipt{}, fmt.Errorf("get receipt: id: %w", err)
	}
	if r.Total, err = decimal.NewFromString(total); err != nil {
		return Receipt{}, fmt.Errorf("get receipt: total: %w", err)
	}
	r.Result = json.RawMessage(payload)
	return r, nil
}
