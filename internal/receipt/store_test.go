package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *[]string:
			*p = r.values[i].([]string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

type stubDB struct {
	rows map[string]stubRow
	args []any
	err  error
}

func (s *stubDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	s.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), s.err
}

func (s *stubDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	if row, ok := s.rows[args[0].(string)]; ok {
		return row
	}
	return stubRow{err: pgx.ErrNoRows}
}

func TestInsertEncodesColumns(t *testing.T) {
	db := &stubDB{}
	store := NewPGStore(db)
	id := uuid.New()
	err := store.Insert(context.Background(), Receipt{
		ID:                 id,
		CatalogFingerprint: "abc",
		Total:              decimal.RequireFromString("28.94"),
	})
	require.NoError(t, err)
	require.Len(t, db.args, 7)
	require.Equal(t, id.String(), db.args[0])
	require.Equal(t, []string{}, db.args[3])
	require.Equal(t, "28.94", db.args[4])
	require.Equal(t, "{}", db.args[5])
	require.False(t, db.args[6].(time.Time).IsZero())

	require.Error(t, store.Insert(context.Background(), Receipt{}))

	db.err = errors.New("conn refused")
	require.ErrorContains(t, store.Insert(context.Background(), Receipt{ID: id}), "conn refused")
}

func TestGetDecodesRow(t *testing.T) {
	id := uuid.New()
	created := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	db := &stubDB{rows: map[string]stubRow{
		id.String(): {values: []any{id.String(), "lane-4", "fp", []string{"1983", "C1"}, "1.99000000", `{"total":"1.99"}`, created}},
	}}
	store := NewPGStore(db)

	rec, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, rec.ID)
	require.Equal(t, "lane-4", rec.Reference)
	require.Equal(t, []string{"1983", "C1"}, rec.Items)
	require.True(t, rec.Total.Equal(decimal.RequireFromString("1.99")))
	require.JSONEq(t, `{"total":"1.99"}`, string(rec.Result))
	require.Equal(t, created, rec.CreatedAt)

	_, err = store.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHandlerGet(t *testing.T) {
	id := uuid.New()
	db := &stubDB{rows: map[string]stubRow{
		id.String(): {values: []any{id.String(), "", "fp", []string{"A"}, "1", `{}`, time.Now().UTC()}},
	}}
	h := &Handler{Store: NewPGStore(db)}
	r := chi.NewRouter()
	r.Get("/receipts/{id}", h.Get)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/receipts/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data Receipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, id, body.Data.ID)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/receipts/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/receipts/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	(&Handler{}).Get(rr, httptest.NewRequest(http.MethodGet, "/receipts/x", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMigrationsEmbedded(t *testing.T) {
	src, err := iofs.New(migrations, "migrations")
	require.NoError(t, err)
	defer src.Close()
	first, err := src.First()
	require.NoError(t, err)
	require.EqualValues(t, 1, first)
}

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/checkout?sslmode=disable", migrateURL("postgres://u:p@db:5432/checkout?sslmode=disable"))
	require.Equal(t, "pgx5://db/checkout", migrateURL("postgresql://db/checkout"))
	require.Equal(t, "pgx5://db/x", migrateURL("pgx5://db/x"))
}
