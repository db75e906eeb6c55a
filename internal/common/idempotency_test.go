package common

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newIdem(t *testing.T) (Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Idem{R: client, TTL: time.Hour}, mr
}

func TestIdemReplaysStoredResponse(t *testing.T) {
	idem, _ := newIdem(t)
	var calls atomic.Int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		JSON(w, http.StatusOK, map[string]string{"echo": string(body)})
	}))

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "abc")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	first := send("x")
	require.Equal(t, http.StatusOK, first.Code)
	second := send("x")
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.EqualValues(t, 1, calls.Load())

	conflict := send("y")
	require.Equal(t, http.StatusConflict, conflict.Code)
	require.Contains(t, conflict.Body.String(), "IDEMPOTENT_REPLAY")
}

func TestIdemForgetsServerErrors(t *testing.T) {
	idem, _ := newIdem(t)
	var calls atomic.Int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		WriteError(w, errors.New("boom"))
	}))
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader("x"))
		req.Header.Set("Idempotency-Key", "k")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusInternalServerError, rr.Code)
	}
	require.EqualValues(t, 2, calls.Load())
}

func TestIdemForgetsPanics(t *testing.T) {
	idem, mr := newIdem(t)
	var calls atomic.Int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		JSON(w, http.StatusCreated, map[string]string{"ok": "yes"})
	}))
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader("x"))
		req.Header.Set("Idempotency-Key", "crash")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	require.PanicsWithValue(t, "boom", func() { send() })
	require.False(t, mr.Exists(idemKey("crash", "/quote")))

	rr := send()
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Empty(t, rr.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, `{"ok":"yes"}`, rr.Body.String())
	require.EqualValues(t, 2, calls.Load())
}

func TestIdemPassThrough(t *testing.T) {
	var calls int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })

	Idem{}.Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	idem, _ := newIdem(t)
	idem.Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, 2, calls)
}

func TestIdemInFlight(t *testing.T) {
	idem, mr := newIdem(t)
	key := idemKey("busy", "/quote")
	require.NoError(t, mr.Set(key, idemPending))

	req := httptest.NewRequest(http.MethodPost, "/quote", strings.NewReader("x"))
	req.Header.Set("Idempotency-Key", "busy")
	rr := httptest.NewRecorder()
	idem.Middleware(http.NotFoundHandler()).ServeHTTP(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "IDEMPOTENT_IN_FLIGHT")
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, NewAppError(CodeUnknownItem, "unknown item", http.StatusUnprocessableEntity, nil).WithDetails(map[string]any{"itemId": "X"}))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.JSONEq(t, `{"error":{"code":"UNKNOWN_ITEM","message":"unknown item","details":{"itemId":"X"}}}`, rr.Body.String())

	rr = httptest.NewRecorder()
	WriteError(rr, &AppError{})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), CodeInternal)
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&limit=5", nil)
	page, per := ParsePagination(req, 20)
	require.Equal(t, 3, page)
	require.Equal(t, 5, per)

	req = httptest.NewRequest(http.MethodGet, "/?page=-1&limit=x", nil)
	page, per = ParsePagination(req, 20)
	require.Equal(t, 1, page)
	require.Equal(t, 20, per)

	req = httptest.NewRequest(http.MethodGet, "/?page=4611686018427387905&limit=9223372036854775807", nil)
	page, per = ParsePagination(req, 20)
	require.Equal(t, MaxPage, page)
	require.Equal(t, MaxPerPage, per)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	require.Equal(t, "10.0.0.1", ClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	require.Equal(t, "192.0.2.7", ClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "anything-goes")
	req.Header.Set("X-Real-IP", "::ffff:198.51.100.4")
	require.Equal(t, "198.51.100.4", ClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	req.RemoteAddr = "[2001:db8::1]:443"
	require.Equal(t, "2001:db8::1", ClientIP(req))
}

func TestDigest(t *testing.T) {
	require.Len(t, Digest("x"), 64)
	require.Equal(t, Digest("a", "b"), Digest("a", "b"))
	require.NotEqual(t, Digest("ab", "c"), Digest("a", "bc"))
	require.NotEqual(t, Digest("", "a"), Digest("a"))
}

func TestDataEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	Data(rr, http.StatusAccepted, map[string]string{"expression": "{A}&{B}"})
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"expression":"{A}&{B}"}}`, rr.Body.String())
	require.Contains(t, rr.Body.String(), "{A}&{B}")

	rr = httptest.NewRecorder()
	JSON(rr, http.StatusOK, Envelope{Data: []int{}, Pagination: &Pagination{Page: 1, PerPage: 10, TotalItems: 0}})
	require.JSONEq(t, `{"data":[],"pagination":{"page":1,"per_page":10,"total_items":0}}`, rr.Body.String())
}
