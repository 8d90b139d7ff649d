// Package viewer owns the month index and the page state built on it.
package viewer

import (
	"context"
	"fmt"
	"html/template"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"reportviewer/internal/cache"
	"reportviewer/internal/core"
	"reportviewer/internal/legal"
	applog "reportviewer/internal/log"
	"reportviewer/internal/markdown"
)

// IndexBuilder produces a complete month index or fails.
type IndexBuilder interface {
	Build(ctx context.Context) (core.MonthIndex, error)
}

// SummaryFetcher reads a summary document.
type SummaryFetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// LegalSubmitter posts legal details and reports the outcome.
type LegalSubmitter interface {
	Submit(ctx context.Context, p core.LegalDetailsPayload) legal.Status
}

type Options struct {
	Builder   IndexBuilder
	Fetcher   SummaryFetcher
	Submitter LegalSubmitter
	// Rendered caches summary HTML. Defaults to a 100 entry, 10 minute LRU.
	Rendered cache.Cache[string]
	Logger   *applog.Logger
}

// Controller serializes access to the month index and view state. Reloads
// are fenced by a generation counter: starting a reload cancels the previous
// scan and only the newest scan may commit.
type Controller struct {
	builder    IndexBuilder
	fetcher    SummaryFetcher
	submitter  LegalSubmitter
	rendered   cache.Cache[string]
	logger     *applog.Logger
	structured *applog.StructuredLogger
	fetches    singleflight.Group

	mu          sync.Mutex
	state       State
	errMsg      string
	index       core.MonthIndex
	indexGen    uint64
	committed   bool
	active      *core.MonthKey
	view        View
	legalStatus legal.Status
	submitSeq   uint64
	generation  uint64
	cancelScan  context.CancelFunc
	lastScan    time.Time
}

func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	rendered := opts.Rendered
	if rendered == nil {
		rendered = cache.NewLRUCache[string](100, 10*time.Minute)
	}
	return &Controller{
		builder:     opts.Builder,
		fetcher:     opts.Fetcher,
		submitter:   opts.Submitter,
		rendered:    rendered,
		logger:      logger.WithComponent(applog.ComponentViewer),
		structured:  applog.NewStructuredLogger(logger),
		state:       StateIdle,
		view:        ViewReports,
		legalStatus: legal.Status{Kind: legal.StatusIdle},
	}
}

// Reload rebuilds the month index. A reload started while another is in
// flight cancels it; the superseded call returns ErrStaleScan and its result
// is discarded. The scan is shared by every viewer, so it only stops when a
// newer reload supersedes it, never because ctx is cancelled.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	if c.cancelScan != nil {
		c.cancelScan()
	}
	scanCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelScan = cancel
	c.state = StateLoading
	c.errMsg = ""
	c.mu.Unlock()
	defer cancel()

	scanID := uuid.NewString()
	start := time.Now()
	c.logger.InfoContext(ctx, "Month index scan started",
		applog.FieldScanID, scanID,
		applog.FieldGeneration, gen)

	idx, err := c.builder.Build(scanCtx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.InfoContext(ctx, "Discarding superseded scan",
			applog.FieldScanID, scanID,
			applog.FieldGeneration, gen)
		return ErrStaleScan
	}
	c.cancelScan = nil

	if err != nil {
		c.state = StateError
		c.errMsg = fmt.Sprintf("Could not load reports: %v", err)
		c.structured.LogError(ctx, "Month index scan failed", err, applog.ComponentViewer, applog.OpScan,
			applog.NewFields().WithOperation(applog.OpScan))
		return fmt.Errorf("build month index: %w", err)
	}

	c.index = idx
	c.indexGen = gen
	c.committed = true
	c.state = StateReady
	c.lastScan = time.Now()
	if c.active != nil && idx.Find(*c.active) < 0 {
		c.active = nil
	}
	c.rendered.Purge()

	c.structured.LogScanCompleted(ctx, scanID, gen, len(idx), time.Since(start).Milliseconds())
	return nil
}

// Ready reports whether an index has been committed at least once.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// Select makes key the active month. Selection works against the last
// committed index, including while a reload is running.
func (c *Controller) Select(key core.MonthKey) (Selection, error) {
	c.mu.Lock()
	if !c.committed {
		c.mu.Unlock()
		return Selection{}, ErrNotReady
	}
	i := c.index.Find(key)
	if i < 0 {
		c.mu.Unlock()
		return Selection{}, fmt.Errorf("%w: %s", ErrUnknownMonth, key)
	}
	entry := c.index[i]
	gen := c.indexGen
	k := key
	c.active = &k
	c.mu.Unlock()

	c.logger.Debug("Month selected",
		applog.FieldOperation, applog.OpSelect,
		applog.FieldYear, key.Year,
		applog.FieldMonth, key.Month)

	sel := Selection{
		Entry:      entry,
		Statements: entry.Statements(),
	}
	if len(sel.Statements) == 0 {
		sel.StatementsMessage = MsgNoStatements
	}

	switch {
	case entry.SummaryLocation == "":
		sel.Summary = SummaryView{State: SummaryNotFound, Message: MsgNoSummary}
	case entry.SummaryContent != nil:
		sel.Summary = c.loaded(gen, key, entry.SummaryLocation, *entry.SummaryContent)
	default:
		sel.Summary = SummaryView{State: SummaryLoading, Location: entry.SummaryLocation, Message: MsgLoadingSummary}
	}
	return sel, nil
}

// LoadSummary returns the rendered summary for key, fetching it when the
// content is not memoized yet. Concurrent loads of the same month share one
// fetch.
func (c *Controller) LoadSummary(ctx context.Context, key core.MonthKey) (SummaryView, error) {
	c.mu.Lock()
	if !c.committed {
		c.mu.Unlock()
		return SummaryView{}, ErrNotReady
	}
	i := c.index.Find(key)
	if i < 0 {
		c.mu.Unlock()
		return SummaryView{}, fmt.Errorf("%w: %s", ErrUnknownMonth, key)
	}
	entry := c.index[i]
	gen := c.indexGen
	c.mu.Unlock()

	if entry.SummaryLocation == "" {
		return SummaryView{State: SummaryNotFound, Message: MsgNoSummary}, nil
	}
	if entry.SummaryContent != nil {
		return c.loaded(gen, key, entry.SummaryLocation, *entry.SummaryContent), nil
	}

	location := entry.SummaryLocation
	ch := c.fetches.DoChan(fmt.Sprintf("%d/%s", gen, key), func() (any, error) {
		// Waiters may give up; the shared fetch runs to completion.
		body, err := c.fetcher.Get(context.WithoutCancel(ctx), location)
		if err != nil {
			return nil, err
		}
		content := string(body)
		c.memoize(gen, key, content)
		return content, nil
	})

	select {
	case <-ctx.Done():
		return SummaryView{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.logger.WarnContext(ctx, "Summary fetch failed",
				applog.FieldURL, location,
				applog.FieldYear, key.Year,
				applog.FieldMonth, key.Month,
				applog.FieldError, res.Err.Error())
			return SummaryView{State: SummaryFailed, Location: location, Message: MsgSummaryFailed}, nil
		}
		return c.loaded(gen, key, location, res.Val.(string)), nil
	}
}

func (c *Controller) memoize(gen uint64, key core.MonthKey, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.indexGen {
		return
	}
	if i := c.index.Find(key); i >= 0 {
		c.index[i].SummaryContent = &content
	}
}

func (c *Controller) loaded(gen uint64, key core.MonthKey, location, content string) SummaryView {
	cacheKey := fmt.Sprintf("%d:%s", gen, key)
	html, ok := c.rendered.Get(cacheKey)
	if !ok {
		html = markdown.Render(content)
		c.rendered.Set(cacheKey, html)
	}
	return SummaryView{
		State:    SummaryLoaded,
		Location: location,
		HTML:     template.HTML(html),
	}
}

func (c *Controller) SetView(v View) error {
	if _, err := ParseView(string(v)); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownView, v)
	}
	c.mu.Lock()
	c.view = v
	c.mu.Unlock()
	return nil
}

// SubmitLegal posts the legal-details form. The status is "saving" while the
// request is in flight; only the latest submission's outcome is kept.
func (c *Controller) SubmitLegal(ctx context.Context, form url.Values) legal.Status {
	payload := legal.PayloadFromForm(form)

	c.mu.Lock()
	c.submitSeq++
	seq := c.submitSeq
	c.legalStatus = legal.Saving()
	c.mu.Unlock()

	st := c.submitter.Submit(ctx, payload)

	c.mu.Lock()
	if seq == c.submitSeq {
		c.legalStatus = st
	}
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Legal details submission finished",
		applog.FieldOperation, applog.OpSubmit,
		applog.FieldYear, payload.Year,
		applog.FieldMonth, payload.Month,
		"status", string(st.Kind))
	return st
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:       c.state,
		Error:       c.errMsg,
		Index:       c.index.Clone(),
		View:        c.view,
		LegalStatus: c.legalStatus,
		Generation:  c.indexGen,
		LastScan:    c.lastScan,
	}
	if c.active != nil {
		k := *c.active
		s.ActiveKey = &k
	}
	return s
}
