// Package series lazily loads the series of a study when its worklist row
// is expanded and keeps them for the lifetime of one screen.
package series

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"radiology-worklist/internal/metrics"
	"radiology-worklist/internal/models"
)

// DataSource is the part of the study data source the cache needs.
type DataSource interface {
	SearchSeries(ctx context.Context, studyInstanceUID string) ([]*models.Series, error)
}

// Cache holds fetched series keyed by study instance UID. It is owned by a
// single worklist screen and discarded with it.
type Cache struct {
	source  DataSource
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	loaded   map[string][]*models.Series
	inflight map[string]struct{}
	closed   bool
	onSettle func(studyInstanceUID string)
}

type Option func(*Cache)

func WithLogger(l zerolog.Logger) Option { return func(c *Cache) { c.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Cache) { c.metrics = m } }

// OnSettle registers a callback run when a fetch for a study finishes,
// whether it stored series or failed. It does not run after Close.
func OnSettle(fn func(studyInstanceUID string)) Option {
	return func(c *Cache) { c.onSettle = fn }
}

func NewCache(source DataSource, opts ...Option) *Cache {
	c := &Cache{
		source:   source,
		log:      zerolog.Nop(),
		loaded:   make(map[string][]*models.Series),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureLoaded fetches the series of uid unless they are cached or already
// being fetched. A failed fetch is logged and leaves uid unmarked so the
// next expansion retries.
func (c *Cache) EnsureLoaded(ctx context.Context, uid string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.loaded[uid]; ok {
		c.mu.Unlock()
		return
	}
	if _, ok := c.inflight[uid]; ok {
		c.mu.Unlock()
		return
	}
	c.inflight[uid] = struct{}{}
	c.mu.Unlock()

	list, err := c.source.SearchSeries(ctx, uid)
	c.metrics.SeriesFetched(err)

	c.mu.Lock()
	delete(c.inflight, uid)
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err == nil {
		c.loaded[uid] = SortByDate(list)
	}
	onSettle := c.onSettle
	c.mu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Str("study", uid).Msg("series lookup failed")
	}
	if onSettle != nil {
		onSettle(uid)
	}
}

// Get returns the cached series of uid.
func (c *Cache) Get(uid string) ([]*models.Series, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.loaded[uid]
	return s, ok
}

// Loading reports whether a fetch for uid is in flight.
func (c *Cache) Loading(uid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[uid]
	return ok
}

// Close drops the cache. Fetches that complete afterwards are discarded.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	clear(c.loaded)
}

// SortByDate orders series by series date and time, oldest first, then by
// series number. Series without a parseable date go last.
func SortByDate(in []*models.Series) []*models.Series {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b *models.Series) int {
		ta, okA := models.ParseDateTime(a.SeriesDate, a.SeriesTime)
		tb, okB := models.ParseDateTime(b.SeriesDate, b.SeriesTime)
		switch {
		case okA && okB:
			if c := ta.Compare(tb); c != 0 {
				return c
			}
		case okA:
			return -1
		case okB:
			return 1
		}
		return cmp.Compare(number(a), number(b))
	})
	return out
}

func number(s *models.Series) int {
	if s.SeriesNumber == nil {
		return int(^uint(0) >> 1)
	}
	return *s.SeriesNumber
}
