package worklist

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"radiology-worklist/internal/debounce"
	"radiology-worklist/internal/metrics"
	"radiology-worklist/internal/models"
	"radiology-worklist/internal/series"
	"radiology-worklist/internal/store"
)

// SessionKey is the session storage key holding the last committed filter.
const SessionKey = "queryFilterValues"

// StudySource runs study searches for the screen.
type StudySource interface {
	SearchStudies(ctx context.Context, q models.StudyQuery) ([]*models.Study, error)
}

// Sink receives what the screen must show. Implementations push to the
// browser and must not block for long.
type Sink interface {
	Render(View)
	Navigate(*url.URL)
}

type Row struct {
	Position      int
	Study         *models.Study
	TimeLabel     string
	Expanded      bool
	Series        []*models.Series
	SeriesLoading bool
}

// View is one rendering of the worklist screen.
type View struct {
	Values        FilterValues
	Rows          []Row
	NumOfStudies  int
	Loaded        int
	SortBy        string
	SortDirection SortDirection
	SortDisabled  bool
	CanAdvance    bool
	CanGoBack     bool
	IsFiltering   bool
	Loading       bool
	Error         string
}

type Options struct {
	Defaults  FilterValues
	Paginator Paginator
	Debounce  time.Duration
	Language  language.Tag
	Log       zerolog.Logger
	Metrics   *metrics.Metrics
}

// Controller owns the state of one mounted worklist screen.
type Controller struct {
	opts      Options
	studies   StudySource
	session   *store.Area
	cache     *series.Cache
	sink      Sink
	debouncer *debounce.Debouncer
	expanded  *ExpandedRows
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	sorter    *Sorter
	values    FilterValues
	location  *url.URL
	results   []*models.Study
	lastQuery *models.StudyQuery
	querySeq  uint64
	loading   bool
	lastErr   error
	unmounted bool
}

// NewController mounts a screen at location. The starting selection is the
// session copy when one exists; the URL query only seeds a screen that has
// none.
func NewController(ctx context.Context, location *url.URL, studies StudySource, seriesSource series.DataSource, session *store.Area, sink Sink, opts Options) *Controller {
	if opts.Paginator.Cap == 0 {
		opts.Paginator = NewPaginator(CappedMax)
	}
	if opts.Defaults.ResultsPerPage == 0 {
		opts.Defaults = Default()
	}
	if opts.Language == language.Und {
		opts.Language = language.English
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		opts:      opts,
		studies:   studies,
		session:   session,
		sink:      sink,
		debouncer: debounce.New(opts.Debounce),
		expanded:  NewExpandedRows(),
		log:       opts.Log,
		ctx:       ctx,
		cancel:    cancel,
		sorter:    NewSorter(opts.Language),
		location:  location,
	}
	c.cache = series.NewCache(seriesSource,
		series.WithLogger(opts.Log),
		series.WithMetrics(opts.Metrics),
		series.OnSettle(func(string) { c.publish() }),
	)

	values := FromURL(opts.Defaults, location)
	if saved, ok := c.loadSession(); ok {
		values = Merge(opts.Defaults, PartialOf(saved))
	}
	if err := values.Validate(); err != nil {
		c.log.Warn().Err(err).Msg("discarding invalid filter values")
		values = opts.Defaults.Clone()
	}
	c.values = values
	return c
}

func (c *Controller) loadSession() (FilterValues, bool) {
	if c.session == nil {
		return FilterValues{}, false
	}
	raw, err := c.session.Get(c.ctx, SessionKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.log.Warn().Err(err).Msg("reading session filter values")
		}
		return FilterValues{}, false
	}
	var v FilterValues
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn().Err(err).Msg("decoding session filter values")
		return FilterValues{}, false
	}
	return v, true
}

func (c *Controller) saveSession(v FilterValues) {
	if c.session == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.session.Set(c.ctx, SessionKey, raw); err != nil {
		c.log.Warn().Err(err).Msg("writing session filter values")
	}
}

// Location returns the screen's current URL.
func (c *Controller) Location() *url.URL {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.location == nil {
		return &url.URL{Path: "/"}
	}
	u := *c.location
	return &u
}

// Load runs the query for the current selection and returns the first view.
func (c *Controller) Load() View {
	c.refresh()
	return c.View()
}

// Values returns the committed selection.
func (c *Controller) Values() FilterValues {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values.Clone()
}

// Update commits next. The page resets to 1 unless next changes it, the
// expanded rows are cleared, and the URL and query follow once edits have
// settled.
func (c *Controller) Update(next FilterValues) {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	committed := Reconcile(c.values, next)
	if err := committed.Validate(); err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("ignoring invalid filter update")
		return
	}
	c.values = committed
	c.mu.Unlock()

	c.expanded.Clear()
	c.saveSession(committed)
	c.publish()
	c.debouncer.Trigger(c.settle)
}

// SetPage moves to page. Forward moves the paging guard rejects are
// dropped without feedback; the return value reports whether the move was
// applied.
func (c *Controller) SetPage(page int) bool {
	c.mu.Lock()
	current := c.values
	loaded := len(c.results)
	c.mu.Unlock()

	if page < 1 {
		return false
	}
	if page > current.PageNumber && !c.opts.Paginator.CanAdvance(current.PageNumber, current.ResultsPerPage, loaded) {
		c.opts.Metrics.GuardRejected()
		return false
	}
	next := current.Clone()
	next.PageNumber = page
	c.Update(next)
	return true
}

// SetResultsPerPage changes the page size, which always restarts at page 1.
func (c *Controller) SetResultsPerPage(n int) {
	if n <= 0 {
		return
	}
	next := c.Values()
	next.ResultsPerPage = n
	c.Update(next)
}

// Toggle expands or collapses the row at position (1-based, in sorted
// order) and starts loading its series on expansion.
func (c *Controller) Toggle(position int) {
	c.mu.Lock()
	sorted, _, _ := c.sortedLocked()
	c.mu.Unlock()
	if position < 1 || position > len(sorted) {
		return
	}
	if c.expanded.Toggle(position) {
		uid := sorted[position-1].StudyInstanceUID
		go c.cache.EnsureLoaded(c.ctx, uid)
	}
	c.publish()
}

// Flush applies a pending debounced edit immediately.
func (c *Controller) Flush() {
	c.debouncer.Flush()
}

// Unmount tears the screen down: pending edits are dropped, in-flight series
// fetches are discarded and the session copy is removed.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.unmounted = true
	c.mu.Unlock()

	c.debouncer.Stop()
	c.cache.Close()
	if c.session != nil {
		if err := c.session.Delete(context.WithoutCancel(c.ctx), SessionKey); err != nil {
			c.log.Warn().Err(err).Msg("clearing session filter values")
		}
	}
	c.cancel()
}

// settle runs once filter edits have been quiet for the debounce interval.
func (c *Controller) settle() {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	next, changed := Serialize(c.values, c.opts.Defaults, c.location)
	if changed {
		c.location = next
	}
	c.mu.Unlock()

	if changed && c.sink != nil {
		c.sink.Navigate(next)
	}
	c.refresh()
}

func (c *Controller) queryFor(v FilterValues) models.StudyQuery {
	return models.StudyQuery{
		PatientName: v.PatientName,
		MRN:         v.MRN,
		StartDate:   v.StudyDate.Start,
		EndDate:     v.StudyDate.End,
		Description: v.Description,
		Modalities:  v.Modalities,
		Accession:   v.Accession,
		Offset:      c.opts.Paginator.QueryOffset(v.PageNumber, v.ResultsPerPage),
		Limit:       c.opts.Paginator.Cap,
	}
}

// refresh re-queries the data source when the query differs from the one
// that produced the current results. Results of superseded queries are
// dropped.
func (c *Controller) refresh() {
	c.mu.Lock()
	q := c.queryFor(c.values)
	if c.lastQuery != nil && c.lastQuery.Equal(q) {
		c.mu.Unlock()
		c.publish()
		return
	}
	c.querySeq++
	seq := c.querySeq
	c.loading = true
	c.mu.Unlock()
	c.publish()

	studies, err := c.studies.SearchStudies(c.ctx, q)
	c.opts.Metrics.StudySearch(err)

	c.mu.Lock()
	if seq != c.querySeq || c.unmounted {
		c.mu.Unlock()
		return
	}
	c.loading = false
	c.lastErr = err
	if err != nil {
		c.log.Warn().Err(err).Msg("study search failed")
		c.results = nil
	} else {
		c.results = studies
		c.lastQuery = &q
	}
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) publish() {
	if c.sink == nil {
		return
	}
	c.mu.Lock()
	unmounted := c.unmounted
	c.mu.Unlock()
	if unmounted {
		return
	}
	c.sink.Render(c.View())
}

// sortedLocked returns the loaded studies in display order. c.mu must be
// held.
func (c *Controller) sortedLocked() ([]*models.Study, string, SortDirection) {
	by, dir, _ := EffectiveSort(c.opts.Paginator, c.values, len(c.results))
	return c.sorter.Sort(c.results, by, dir), by, dir
}

// View renders the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.values.Clone()
	p := c.opts.Paginator
	sorted, by, dir := c.sortedLocked()
	_, _, disabled := EffectiveSort(p, v, len(c.results))

	view := View{
		Values:        v,
		NumOfStudies:  p.DisplayCount(v.PageNumber, v.ResultsPerPage, len(c.results)),
		Loaded:        len(c.results),
		SortBy:        by,
		SortDirection: dir,
		SortDisabled:  disabled,
		CanAdvance:    p.CanAdvance(v.PageNumber, v.ResultsPerPage, len(c.results)),
		CanGoBack:     v.PageNumber > 1,
		IsFiltering:   v.IsFiltering(c.opts.Defaults),
		Loading:       c.loading,
	}
	if c.lastErr != nil {
		view.Error = c.lastErr.Error()
	}

	offset := p.Offset(v.PageNumber, v.ResultsPerPage)
	for i, s := range Visible(p, sorted, v.PageNumber, v.ResultsPerPage) {
		row := Row{Position: offset + i + 1, Study: s}
		if t, ok := s.GetStudyTime(); ok {
			row.TimeLabel = t.Format("15:04")
		}
		if c.expanded.IsExpanded(row.Position) {
			row.Expanded = true
			row.Series, _ = c.cache.Get(s.StudyInstanceUID)
			row.SeriesLoading = c.cache.Loading(s.StudyInstanceUID)
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}
