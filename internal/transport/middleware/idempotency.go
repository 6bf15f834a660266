package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/frahmantamala/payapp/internal"
	"github.com/frahmantamala/payapp/internal/auth"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"
	maxIdempotencyKey = 255
	lockTTL           = 30 * time.Second
)

// StoredResponse is a captured response replayed for a repeated key.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// IdempotencyStore persists responses by key. Get returns nil, nil on a miss.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Save(ctx context.Context, key string, resp *StoredResponse, ttl time.Duration) error
}

type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: "payapp:idem:"}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*StoredResponse, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if goerrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *RedisIdempotencyStore) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+"lock:"+key, "1", ttl).Result()
}

func (s *RedisIdempotencyStore) Unlock(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+"lock:"+key).Err()
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, resp *StoredResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, raw, ttl).Err()
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// unsafe methods. Keys are scoped to the caller and the route; reusing a key
// with a different body is a conflict. Server errors are not stored so the
// client may retry them. A store outage degrades to pass-through.
func Idempotency(store IdempotencyStore, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if store == nil || key == "" || !unsafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKey {
				writeAppError(w, internal.NewValidationError("Idempotency-Key is too long", internal.ErrCodeValidationFailed))
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				writeAppError(w, internal.NewValidationError("unreadable body", internal.ErrCodeValidationFailed))
				return
			}
			scoped := scopeKey(r, key)
			fingerprint := fingerprintBody(body)
			ctx := r.Context()

			stored, err := store.Get(ctx, scoped)
			if err != nil {
				logger.Warn("idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if stored != nil {
				replay(w, stored, fingerprint)
				return
			}

			locked, err := store.Lock(ctx, scoped, lockTTL)
			if err != nil {
				logger.Warn("idempotency store unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !locked {
				writeAppError(w, internal.NewConflictError("a request with this Idempotency-Key is in progress", internal.ErrCodeIdempotencyConflict))
				return
			}
			defer func() {
				if err := store.Unlock(context.WithoutCancel(ctx), scoped); err != nil {
					logger.Warn("failed to release idempotency lock", "error", err)
				}
			}()

			rec := &capturingWriter{ResponseWriter: w, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			if rec.status() >= http.StatusInternalServerError {
				return
			}
			resp := &StoredResponse{
				Status:      rec.status(),
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
				Fingerprint: fingerprint,
			}
			if err := store.Save(context.WithoutCancel(ctx), scoped, resp, ttl); err != nil {
				logger.Warn("failed to store idempotent response", "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, stored *StoredResponse, fingerprint string) {
	if stored.Fingerprint != fingerprint {
		writeAppError(w, internal.NewConflictError("Idempotency-Key was reused with a different request", internal.ErrCodeIdempotencyConflict))
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func unsafeMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func scopeKey(r *http.Request, key string) string {
	owner := "anonymous"
	if u, ok := auth.UserFromContext(r.Context()); ok && u != nil {
		owner = strconv.FormatInt(u.ID, 10)
	}
	return owner + ":" + r.Method + ":" + r.URL.Path + ":" + key
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type capturingWriter struct {
	http.ResponseWriter
	code int
	body *bytes.Buffer
}

func (c *capturingWriter) WriteHeader(code int) {
	if c.code == 0 {
		c.code = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	if c.code == 0 {
		c.code = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *capturingWriter) status() int {
	if c.code == 0 {
		return http.StatusOK
	}
	return c.code
}
