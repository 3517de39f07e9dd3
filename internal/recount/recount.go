package recount

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"metal-catalog-service/internal/domain"
)

// Source reads the current category forest and per-category direct product counts.
type Source interface {
	ListCategoryCounts(ctx context.Context) ([]domain.CategoryCount, error)
	CountProductsByCategory(ctx context.Context, includeInactive bool) (map[int64]int, error)
}

// Sink persists a recomputed category total.
type Sink interface {
	UpdateCategoryProductCount(ctx context.Context, categoryID int64, total int) error
}

// ItemError records a category whose total could not be written.
type ItemError struct {
	CategoryID int64  `json:"category_id"`
	Total      int    `json:"total"`
	Error      string `json:"error"`
}

// Summary reports the outcome of one recount run.
type Summary struct {
	Examined  int           `json:"examined"`
	Planned   int           `json:"planned"`
	Updated   int           `json:"updated"`
	Failed    int           `json:"failed"`
	Unchanged int           `json:"unchanged"`
	Updates   []Update      `json:"updates"`
	Errors    []ItemError   `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// Aggregator runs the recount against a Source and a Sink.
type Aggregator struct {
	source          Source
	sink            Sink
	log             *zap.SugaredLogger
	includeInactive bool
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithInactiveProducts makes deactivated products count towards category totals.
func WithInactiveProducts(include bool) Option {
	return func(a *Aggregator) { a.includeInactive = include }
}

// NewAggregator creates an Aggregator. A nil logger disables logging.
func NewAggregator(source Source, sink Sink, log *zap.SugaredLogger, opts ...Option) *Aggregator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	a := &Aggregator{source: source, sink: sink, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run recomputes every category total and writes the ones that changed.
//
// Read errors abort the run before anything is written. A failed write is logged,
// recorded in the summary and skipped; the next run picks it up again.
func (a *Aggregator) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	categories, err := a.source.ListCategoryCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("recount: list categories: %w", err)
	}
	direct, err := a.source.CountProductsByCategory(ctx, a.includeInactive)
	if err != nil {
		return nil, fmt.Errorf("recount: count products: %w", err)
	}

	totals := ComputeTotals(categories, direct)
	updates := PlanUpdates(categories, totals)

	summary := &Summary{
		Examined: len(totals),
		Planned:  len(updates),
		Updates:  make([]Update, 0, len(updates)),
	}

	for _, u := range updates {
		if err := a.sink.UpdateCategoryProductCount(ctx, u.CategoryID, u.Total); err != nil {
			a.log.Errorw("category total update failed",
				"category_id", u.CategoryID,
				"previous", u.Previous,
				"total", u.Total,
				"error", err,
			)
			summary.Failed++
			summary.Errors = append(summary.Errors, ItemError{CategoryID: u.CategoryID, Total: u.Total, Error: err.Error()})
			continue
		}
		a.log.Debugw("category total updated", "category_id", u.CategoryID, "previous", u.Previous, "total", u.Total)
		summary.Updated++
		summary.Updates = append(summary.Updates, u)
	}
	summary.Unchanged = summary.Examined - summary.Planned
	summary.Duration = time.Since(started)

	a.log.Infow("category recount finished",
		"examined", summary.Examined,
		"updated", summary.Updated,
		"failed", summary.Failed,
		"unchanged", summary.Unchanged,
		"include_inactive", a.includeInactive,
		"duration", summary.Duration,
	)
	return summary, nil
}
