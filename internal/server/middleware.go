package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// GetRequestID returns the ID assigned to the request by the server, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

var requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "labdepot_http_request_seconds",
	Help: "HTTP request latency, by method and status class",
}, []string{"method", "status"})

func init() {
	prometheus.MustRegister(requestDuration)
}

// wrapMiddleware tags the request, then logs and measures it. Panics are
// turned into a 500 inside the access log so they are logged with it.
func (s *serverImpl) wrapMiddleware(h http.Handler) http.Handler {
	return s.withRequestID(s.withAccessLog(s.withRecovery(h)))
}

func (s *serverImpl) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *serverImpl) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("Panic serving request",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", v,
					"stack", string(debug.Stack()),
					"request_id", GetRequestID(r.Context()),
				)
				writeInternalError(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *serverImpl) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		requestDuration.WithLabelValues(r.Method, statusClass(rec.status)).Observe(elapsed.Seconds())
		s.logger.Log(r.Context(), accessLevel(r.Context(), rec.status), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", GetRequestID(r.Context()),
		)
	})
}

// accessLevel logs server faults at error, and failures caused by the
// client going away at warn.
func accessLevel(ctx context.Context, status int) slog.Level {
	switch {
	case status < 500:
		return slog.LevelInfo
	case status == 499 || ctx.Err() != nil:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

func writeInternalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	body := map[string]string{"code": "INTERNAL_ERROR", "message": "Internal server error"}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to encode error response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}
