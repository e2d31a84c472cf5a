// Package query answers paginated, filtered list requests.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labdepot/labdepot/internal/storage"
	"github.com/labdepot/labdepot/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

var queryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "labdepot_query_latency_seconds",
	Help: "The latency of list queries",
}, []string{"collection"})

func init() {
	prometheus.MustRegister(queryLatency)
}

// Request is a raw list request. Page and Limit are the unparsed query
// string values; empty filter values mean no filter.
type Request struct {
	Collection string `schema:"-"`
	LabID      string `schema:"labId"`
	ItemID     string `schema:"itemId"`
	Page       string `schema:"page"`
	Limit      string `schema:"limit"`
}

type Pagination struct {
	Page       int64 `json:"page"`
	Limit      int64 `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

type Result struct {
	Items      []model.Document `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// DefaultSort orders newest first with the id as tie-breaker, so pages are
// stable between requests.
var DefaultSort = []model.Sort{
	{Field: "createdAt", Direction: model.Descending},
	{Field: model.IDField, Direction: model.Descending},
}

type Engine struct {
	store  storage.Store
	logger *slog.Logger
}

func NewEngine(store storage.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		logger: logger.With("component", "query"),
	}
}

// Query returns one page of req.Collection. Count and page fetch run
// concurrently; under concurrent writes the total may be slightly stale
// relative to the page. A page past the end is empty, not an error.
func (e *Engine) Query(ctx context.Context, req Request) (*Result, error) {
	coll, ok := Collections[req.Collection]
	if !ok {
		return nil, fmt.Errorf("%w: unknown collection %q", model.ErrInvalidQuery, req.Collection)
	}

	start := time.Now()
	defer func() {
		queryLatency.WithLabelValues(coll.Name).Observe(time.Since(start).Seconds())
	}()

	page := ParsePage(req.Page)
	limit := ParseLimit(req.Limit, coll.MaxLimit)
	filters := buildFilters(coll, req)

	var (
		total int64
		items []model.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := e.store.Count(gctx, coll.Name, filters)
		if err != nil {
			return fmt.Errorf("count %s: %w", coll.Name, err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		docs, err := e.store.Find(gctx, coll.Name, model.Query{
			Filters: filters,
			Sort:    DefaultSort,
			Skip:    Skip(page, limit),
			Limit:   limit,
		})
		if err != nil {
			return fmt.Errorf("find %s: %w", coll.Name, err)
		}
		items = docs
		return nil
	})
	if err := g.Wait(); err != nil {
		e.logger.Error("List query failed", "collection", coll.Name, "error", err)
		return nil, err
	}

	if items == nil {
		items = []model.Document{}
	}
	return &Result{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: TotalPages(total, limit),
		},
	}, nil
}

func buildFilters(coll Collection, req Request) model.Filters {
	var filters model.Filters
	add := func(name, value string) {
		if value == "" {
			return
		}
		if field, ok := coll.Filters[name]; ok {
			filters = append(filters, model.Eq(field, value))
		}
	}
	add("labId", req.LabID)
	add("itemId", req.ItemID)
	return filters
}
