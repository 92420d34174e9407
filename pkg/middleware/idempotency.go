package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"hotel-booking/pkg/cache"
	"hotel-booking/pkg/utils"

	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

type IdempotencyStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (cache.ClaimResult, error)
	Save(ctx context.Context, key string, resp cache.StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type recordingWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a retried request carrying the
// same Idempotency-Key. Keys are scoped to the caller and route. A duplicate
// that arrives while the first request is still running gets 409; server
// errors release the key so the client can retry.
func Idempotency(store IdempotencyStore, ttl time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			scope := "anonymous"
			if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
				scope = userID.String()
			}
			key := scope + ":" + r.Method + ":" + r.URL.Path + ":" + clientKey

			claim, err := store.Claim(r.Context(), key, ttl)
			if err != nil {
				logger.Warn("Idempotency store unavailable, processing without replay protection",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if !claim.Claimed {
				if claim.Stored == nil {
					utils.ResponseConflict(w, "A request with this Idempotency-Key is still being processed")
					return
				}
				if claim.Stored.ContentType != "" {
					w.Header().Set("Content-Type", claim.Stored.ContentType)
				}
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(claim.Stored.Status)
				w.Write(claim.Stored.Body)
				return
			}

			rw := &recordingWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			// The request context may already be cancelled here.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
			defer cancel()

			if rw.statusCode >= http.StatusInternalServerError {
				if err := store.Release(ctx, key); err != nil {
					logger.Warn("Failed to release idempotency key", zap.Error(err))
				}
				return
			}

			stored := cache.StoredResponse{
				Status:      rw.statusCode,
				ContentType: rw.Header().Get("Content-Type"),
				Body:        rw.body.Bytes(),
			}
			if err := store.Save(ctx, key, stored, ttl); err != nil {
				logger.Warn("Failed to store idempotent response", zap.Error(err))
			}
		})
	}
}
