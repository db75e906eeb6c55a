package common

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const idemPending = "pending"

// Idem provides an Idempotency-Key middleware backed by Redis. The first
// response for a key is stored and replayed for later requests carrying the
// same key and body; a different body under the same key is a conflict.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

type idemRecord struct {
	BodyHash    string `json:"bodyHash"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

func idemKey(header, path string) string {
	return "idem:" + Digest(path, header)
}

// Middleware enforces idempotency semantics for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			JSONError(w, http.StatusBadRequest, CodeBadRequest, "unable to read request body", nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		bodyHash := Digest(string(body))
		key := idemKey(header, r.URL.Path)

		ok, err := i.R.SetNX(ctx, key, idemPending, i.TTL).Result()
		if err != nil {
			idemStoreError(w, err)
			return
		}
		if !ok {
			i.replay(ctx, w, key, bodyHash)
			return
		}

		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				_ = i.R.Del(context.Background(), key).Err()
				panic(p)
			}
			if rec.status >= http.StatusInternalServerError {
				_ = i.R.Del(context.Background(), key).Err()
				return
			}
			payload, _ := json.Marshal(idemRecord{
				BodyHash:    bodyHash,
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			_ = i.R.Set(context.Background(), key, payload, i.TTL).Err()
		}()
		next.ServeHTTP(rec, r)
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key, bodyHash string) {
	raw, err := i.R.Get(ctx, key).Bytes()
	if err != nil {
		idemStoreError(w, err)
		return
	}
	if string(raw) == idemPending {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_IN_FLIGHT", "request with this key is still running", nil)
		return
	}
	var stored idemRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		idemStoreError(w, err)
		return
	}
	if stored.BodyHash != bodyHash {
		JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "idempotency key reused with a different body", nil)
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func idemStoreError(w http.ResponseWriter, err error) {
	JSONError(w, http.StatusInternalServerError, CodeInternal, "idempotency store error", map[string]any{"error": err.Error()})
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
