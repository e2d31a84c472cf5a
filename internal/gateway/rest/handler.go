package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	"github.com/labdepot/labdepot/internal/query"
	"github.com/labdepot/labdepot/internal/server"
	"github.com/labdepot/labdepot/internal/storage"
	"github.com/labdepot/labdepot/pkg/model"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default body size limit and request timeout
const (
	DefaultMaxBodySize    = 1 << 20
	DefaultRequestTimeout = 30 * time.Second
)

// APIError represents a structured error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

type Handler struct {
	store   storage.Store
	engine  *query.Engine
	health  http.Handler
	decoder *schema.Decoder
	now     func() time.Time
	logger  *slog.Logger

	maxBodySize    int64
	requestTimeout time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHealth serves /health from h instead of a static OK.
func WithHealth(h http.Handler) HandlerOption {
	return func(handler *Handler) { handler.health = h }
}

// WithClock sets the clock used for createdAt and updatedAt.
func WithClock(now func() time.Time) HandlerOption {
	return func(handler *Handler) { handler.now = now }
}

// WithLimits overrides the body size limit and request timeout.
// Zero values keep the defaults.
func WithLimits(maxBodySize int64, timeout time.Duration) HandlerOption {
	return func(handler *Handler) {
		if maxBodySize > 0 {
			handler.maxBodySize = maxBodySize
		}
		if timeout > 0 {
			handler.requestTimeout = timeout
		}
	}
}

func NewHandler(store storage.Store, engine *query.Engine, logger *slog.Logger, opts ...HandlerOption) (*Handler, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if engine == nil {
		return nil, errors.New("query engine cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	h := &Handler{
		store:          store,
		engine:         engine,
		decoder:        decoder,
		now:            time.Now,
		logger:         logger.With("component", "rest"),
		maxBodySize:    DefaultMaxBodySize,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	for _, res := range resources {
		base := "/api/v1/" + res.collection
		mux.HandleFunc("GET "+base, h.wrap(h.handleList(res)))
		mux.HandleFunc("GET "+base+"/{id}", h.wrap(h.handleGet(res)))
		if res.readOnly {
			continue
		}
		mux.HandleFunc("POST "+base, h.wrapBody(h.handleCreate(res)))
		mux.HandleFunc("PUT "+base+"/{id}", h.wrapBody(h.handleUpdate(res)))
		mux.HandleFunc("DELETE "+base+"/{id}", h.wrap(h.handleDelete(res)))
	}

	mux.HandleFunc("GET /health", withTimeout(h.handleHealth, 5*time.Second))
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (h *Handler) wrap(next http.HandlerFunc) http.HandlerFunc {
	return withTimeout(next, h.requestTimeout)
}

func (h *Handler) wrapBody(next http.HandlerFunc) http.HandlerFunc {
	return withTimeout(maxBodySize(next, h.maxBodySize), h.requestTimeout)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		h.health.ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError writes a structured JSON error response
func writeError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIError{Code: code, Message: message}); err != nil {
		slog.Warn("Failed to encode error response", "error", err)
	}
}

// writeInternalError reports 499 instead of 500 when the client went away.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if model.IsCanceled(err) {
		w.WriteHeader(499) // Client Closed Request
		return
	}
	slog.Error(message, "error", err, "request_id", server.GetRequestID(r.Context()))
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

func maxBodySize(next http.HandlerFunc, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next(w, r)
	}
}

func withTimeout(next http.HandlerFunc, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}
