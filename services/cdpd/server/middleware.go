package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"cdpcore/observability"
	"cdpcore/services/cdpd/indexer"
)

const (
	headerRequestID   = "X-Request-ID"
	headerIdempotency = "Idempotency-Key"
	metricsModule     = "cdpd"
)

type requestIDKey struct{}

// requestID propagates the caller supplied X-Request-ID or assigns a fresh
// UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	if s.body != nil {
		s.body.Write(b)
	}
	return s.ResponseWriter.Write(b)
}

// observe records request metrics keyed by the matched route pattern and
// logs the outcome.
func observe(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)
			if recorder.status == 0 {
				recorder.status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			elapsed := time.Since(start)
			observability.ModuleMetrics().Observe(metricsModule, r.Method+" "+route, recorder.status, elapsed)
			logger.DebugContext(r.Context(), "request",
				"method", r.Method,
				"route", route,
				"status", recorder.status,
				"duration_ms", elapsed.Milliseconds(),
				"request_id", requestIDFrom(r.Context()),
			)
		})
	}
}

// idempotent replays the stored response when a mutating request repeats an
// Idempotency-Key. Keys are scoped to the authenticated caller. Server errors
// are not stored so the client may retry them.
func idempotent(archive *indexer.Archive, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(headerIdempotency))
			if archive == nil || key == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			if caller, ok := CallerFromContext(r.Context()); ok {
				key = caller.String() + ":" + key
			}
			record, found, err := archive.LookupResponse(r.Context(), key)
			if err != nil {
				logger.WarnContext(r.Context(), "idempotency lookup", "err", err)
			}
			if found {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(record.Status)
				_, _ = w.Write([]byte(record.Response))
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			next.ServeHTTP(recorder, r)
			if recorder.status == 0 {
				recorder.status = http.StatusOK
			}
			if recorder.status >= http.StatusInternalServerError {
				return
			}
			err = archive.StoreResponse(r.Context(), indexer.IdempotencyKey{
				Key:       key,
				RequestID: requestIDFrom(r.Context()),
				Method:    r.Method,
				Path:      r.URL.Path,
				Status:    recorder.status,
				Response:  recorder.body.String(),
			})
			if err != nil {
				logger.WarnContext(r.Context(), "idempotency store", "err", err)
			}
		})
	}
}
