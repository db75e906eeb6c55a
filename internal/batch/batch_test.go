package batch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-checkout/internal/catalog"
	"github.com/noah-isme/backend-checkout/internal/checkout"
	"github.com/noah-isme/backend-checkout/internal/common"
	"github.com/noah-isme/backend-checkout/internal/lock"
	"github.com/noah-isme/backend-checkout/internal/obs"
)

const storeCatalog = `{1983} -> 1.99
{4900} -> 3.49
{8873} -> 2.49
{6732} -> 2.49
{0923} -> 15.49
{Toothbrush3for2} -> {1983}{1983}{1983}={1983}*2
{ChipsAndSalsa} -> {6732}{4900}=4.99
`

func init() {
	obs.MustRegisterDomainMetrics("batch_test", prometheus.NewRegistry())
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type(), Queue: Queue}, nil
}

type fixture struct {
	mr        *miniredis.Miniredis
	client    *redis.Client
	store     *Store
	enqueuer  *fakeEnqueuer
	submitter *Submitter
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c, err := catalog.Parse(storeCatalog)
	require.NoError(t, err)
	svc, err := checkout.NewService(checkout.Config{
		Catalog: catalog.NewStaticService(c, "test"),
		Places:  2,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	store := NewStore(client, time.Minute)
	enq := &fakeEnqueuer{}
	return &fixture{
		mr:        mr,
		client:    client,
		store:     store,
		enqueuer:  enq,
		submitter: NewSubmitter(enq, store, 2),
		processor: &Processor{
			Quoter:      svc,
			Store:       store,
			Locker:      lock.Locker{R: client},
			Concurrency: 3,
			Logger:      zerolog.Nop(),
		},
	}
}

var twoBaskets = Request{Transactions: []Transaction{
	{Reference: "lane-1", Items: []string{"1983", "4900", "8873", "6732", "0923", "1983", "1983", "1983"}},
	{Reference: "lane-2", Items: []string{"1983", "9999"}},
}}

func TestSubmitQueuesTask(t *testing.T) {
	f := newFixture(t)
	b, err := f.submitter.Submit(context.Background(), twoBaskets)
	require.NoError(t, err)
	require.Equal(t, StatusQueued, b.Status)
	require.Equal(t, 2, b.Transactions)
	require.False(t, b.CreatedAt.IsZero())

	require.Len(t, f.enqueuer.tasks, 1)
	task := f.enqueuer.tasks[0]
	require.Equal(t, TypeQuoteBatch, task.Type())

	var pl payload
	require.NoError(t, json.Unmarshal(task.Payload(), &pl))
	require.Equal(t, b.ID, pl.BatchID)
	require.Len(t, pl.Transactions, 2)

	seen := map[asynq.OptionType]any{}
	for _, o := range f.enqueuer.opts[0] {
		seen[o.Type()] = o.Value()
	}
	require.Equal(t, b.ID, seen[asynq.TaskIDOpt])
	require.Equal(t, Queue, seen[asynq.QueueOpt])
	require.Equal(t, 2, seen[asynq.MaxRetryOpt])
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t)
	_, err := f.submitter.Submit(context.Background(), Request{})
	var verr *checkout.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = f.submitter.Submit(context.Background(), Request{Transactions: []Transaction{{Items: []string{""}}}})
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "Request.Transactions[0].Items[0]")
	require.Empty(t, f.enqueuer.tasks)
}

func TestSubmitRecordsEnqueueFailure(t *testing.T) {
	f := newFixture(t)
	f.enqueuer.err = errors.New("redis down")
	_, err := f.submitter.Submit(context.Background(), twoBaskets)
	require.Error(t, err)

	keys := f.mr.Keys()
	require.Len(t, keys, 1)
	b, err := f.store.Load(context.Background(), strings.TrimPrefix(keys[0], "batch:"))
	require.NoError(t, err)
	require.Equal(t, StatusFailed, b.Status)
}

func TestProcessTaskPricesEachTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	okBefore := testutil.ToFloat64(obs.BatchTransactionsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(obs.BatchTransactionsTotal.WithLabelValues("error"))

	b, err := f.submitter.Submit(ctx, twoBaskets)
	require.NoError(t, err)
	require.NoError(t, f.processor.ProcessTask(ctx, f.enqueuer.tasks[0]))

	got, err := f.store.Load(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDone, got.Status)
	require.Equal(t, 1, got.Succeeded)
	require.Equal(t, 1, got.Failed)
	require.Len(t, got.Outcomes, 2)

	first := got.Outcomes[0]
	require.Equal(t, "lane-1", first.Reference)
	require.Nil(t, first.Error)
	require.Equal(t, "28.94", first.Quote.Result.Total.StringFixed(2))

	second := got.Outcomes[1]
	require.Equal(t, 1, second.Index)
	require.Nil(t, second.Quote)
	require.Equal(t, common.CodeUnknownItem, second.Error.Code)

	require.Equal(t, okBefore+1, testutil.ToFloat64(obs.BatchTransactionsTotal.WithLabelValues("ok")))
	require.Equal(t, errBefore+1, testutil.ToFloat64(obs.BatchTransactionsTotal.WithLabelValues("error")))

	// A redelivered task leaves the finished batch alone.
	require.NoError(t, f.processor.ProcessTask(ctx, f.enqueuer.tasks[0]))
	require.Equal(t, okBefore+1, testutil.ToFloat64(obs.BatchTransactionsTotal.WithLabelValues("ok")))
}

func TestProcessTaskSkipsRetryOnBadPayload(t *testing.T) {
	f := newFixture(t)
	err := f.processor.ProcessTask(context.Background(), asynq.NewTask(TypeQuoteBatch, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = f.processor.ProcessTask(context.Background(), asynq.NewTask(TypeQuoteBatch, []byte(`{"transactions":[]}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessTaskReportsHeldLock(t *testing.T) {
	f := newFixture(t)
	task, err := NewQuoteBatchTask("b-1", twoBaskets.Transactions)
	require.NoError(t, err)
	require.NoError(t, f.mr.Set("lock:batch:b-1", "other"))

	err = f.processor.ProcessTask(context.Background(), task)
	require.ErrorIs(t, err, lock.ErrHeld)
	_, err = f.store.Load(context.Background(), "b-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/api/v1/checkout/batches", h.Create)
	r.Get("/api/v1/checkout/batches/{id}", h.Get)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHandlers(t *testing.T) {
	f := newFixture(t)
	h := &Handler{Submitter: f.submitter, Store: f.store}

	rr := serve(h, http.MethodPost, "/api/v1/checkout/batches", `{"transactions":[{"items":["1983","1983","1983"]}]}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var created struct {
		Data Batch `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, StatusQueued, created.Data.Status)
	require.Equal(t, "/api/v1/checkout/batches/"+created.Data.ID, rr.Header().Get("Location"))

	require.NoError(t, f.processor.ProcessTask(context.Background(), f.enqueuer.tasks[0]))
	rr = serve(h, http.MethodGet, "/api/v1/checkout/batches/"+created.Data.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var fetched struct {
		Data Batch `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fetched))
	require.Equal(t, StatusDone, fetched.Data.Status)
	require.Equal(t, "3.98", fetched.Data.Outcomes[0].Quote.Result.Total.StringFixed(2))

	rr = serve(h, http.MethodPost, "/api/v1/checkout/batches", `{"transactions":[]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), common.CodeValidation)

	rr = serve(h, http.MethodGet, "/api/v1/checkout/batches/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, http.MethodGet, "/api/v1/checkout/batches/7d0f2b8e-5d8b-4d36-9c1e-0a4b7f6f0d11", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(&Handler{}, http.MethodGet, "/api/v1/checkout/batches/"+created.Data.ID, "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRetryDelayGrowsFromBase(t *testing.T) {
	delay := retryDelay(100 * time.Millisecond)
	for n, want := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond} {
		got := delay(n, errors.New("busy"), nil)
		require.InDelta(t, float64(want), float64(got), float64(want)*0.2+1, "retry %d", n)
	}
	got := retryDelay(0)(0, nil, nil)
	require.InDelta(t, float64(time.Second), float64(got), float64(time.Second)*0.2+1)
}
