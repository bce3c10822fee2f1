package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/heartlink/backend/internal/logging"
)

// responseRecorder captures the status and body size written by the
// wrapped handler for the completion log line.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *responseRecorder) WriteHeader(status int) {
	if rec.status == 0 {
		rec.status = status
	}
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *responseRecorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(p)
	rec.bytes += int64(n)
	return n, err
}

func (rec *responseRecorder) Status() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}

// RequestLogger tags each request with an id, recovers panics, and logs
// one completion line per request through the context-scoped logger.
// An inbound X-Request-Id is honored so ids stay stable across proxies,
// and the id is echoed back on the response.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", requestID)

			reqLogger := base.With(
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)

			ctx := logging.WithLogger(r.Context(), reqLogger)
			ctx = logging.WithRequestID(ctx, requestID)
			r = r.WithContext(ctx)

			rec := &responseRecorder{ResponseWriter: w}

			defer func() {
				if p := recover(); p != nil {
					reqLogger.Error("panic recovered", "panic", p)
					if rec.status == 0 {
						http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					}
				}

				attrs := []any{
					slog.Int("status", rec.Status()),
					slog.Int64("bytes", rec.bytes),
					slog.Duration("duration", time.Since(start)),
				}
				// Handlers annotate the request in place once the caller
				// is authenticated, so the id is visible here.
				if identityID := logging.IdentityIDFromContext(r.Context()); identityID != "" {
					attrs = append(attrs, slog.String("identity_id", identityID))
				}

				if rec.Status() >= http.StatusInternalServerError {
					reqLogger.Error("request completed", attrs...)
				} else {
					reqLogger.Info("request completed", attrs...)
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
