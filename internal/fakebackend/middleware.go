package fakebackend

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlationId"
)

// CorrelationMiddleware reads X-Correlation-ID and adds it to the request
// context and logger, so fake-backend logs line up with client logs.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")

		if correlationID != "" {
			ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
			logger := log.With().Str("correlationId", correlationID).Logger()
			r = r.WithContext(logger.WithContext(ctx))
			w.Header().Set("X-Correlation-ID", correlationID)
		}

		next.ServeHTTP(w, r)
	})
}

// GetCorrelationID returns the request's correlation ID, or "" if none was sent.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// AccessLog logs one line per request with the ctx logger.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("fake backend request")
	})
}
