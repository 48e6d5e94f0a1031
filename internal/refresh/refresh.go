// Package refresh periodically downloads the configured feeds and replaces
// the workspace event list.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"calfilter/internal/ics"
	appLog "calfilter/internal/log"
	"calfilter/internal/metrics"
	"calfilter/internal/model"
	"calfilter/internal/workspace"
)

// Source downloads feed bodies. *ics.Fetcher implements it.
type Source interface {
	FetchAll(ctx context.Context, feeds []ics.Feed) ([]ics.FetchResult, []error)
}

// Sink receives the parsed events. *workspace.Workspace implements it.
type Sink interface {
	SetEvents(ctx context.Context, raws []model.RawEvent) (workspace.RefreshReport, error)
}

// Report summarizes one refresh run.
type Report struct {
	Feeds     int                     `json:"feeds"`
	Failed    int                     `json:"failed"`
	FromCache int                     `json:"from_cache"`
	Workspace workspace.RefreshReport `json:"workspace"`
	Duration  time.Duration           `json:"duration_ns"`
}

// ErrNoFeeds is returned by RunOnce when nothing is configured.
var ErrNoFeeds = errors.New("refresh: no feeds configured")

type Refresher struct {
	src     Source
	sink    Sink
	feeds   []ics.Feed
	metrics *metrics.Metrics

	runMu sync.Mutex

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	started bool
}

// New builds a Refresher. m may be nil.
func New(src Source, sink Sink, feeds []ics.Feed, m *metrics.Metrics) *Refresher {
	return &Refresher{
		src:     src,
		sink:    sink,
		feeds:   feeds,
		metrics: m,
	}
}

// RunOnce fetches every feed, parses the bodies and hands the events to the
// sink. Feeds that fail are skipped; if every feed fails the sink is left
// untouched and an error is returned.
func (r *Refresher) RunOnce(ctx context.Context) (Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := time.Now()
	rep := Report{Feeds: len(r.feeds)}
	if len(r.feeds) == 0 {
		return rep, ErrNoFeeds
	}

	results, errs := r.src.FetchAll(ctx, r.feeds)
	rep.Failed = len(errs)
	r.count("error", len(errs))

	var raws []model.RawEvent
	parsed := 0
	for _, res := range results {
		if res.FromCache {
			rep.FromCache++
			r.count("cached", 1)
		} else {
			r.count("ok", 1)
		}

		evs, err := ics.ParseICS(res.Feed, res.Body)
		if err != nil {
			rep.Failed++
			appLog.Error("feed parse failed", err, "feed", res.Feed.ID)
			continue
		}
		parsed++
		raws = append(raws, evs...)
	}

	if parsed == 0 {
		rep.Duration = time.Since(start)
		return rep, fmt.Errorf("refresh: all %d feeds failed", len(r.feeds))
	}

	wr, err := r.sink.SetEvents(ctx, raws)
	rep.Workspace = wr
	rep.Duration = time.Since(start)
	if r.metrics != nil {
		r.metrics.RefreshDuration.Observe(rep.Duration.Seconds())
	}
	if err != nil {
		return rep, err
	}

	appLog.Info("refresh complete",
		"feeds", rep.Feeds,
		"failed", rep.Failed,
		"from_cache", rep.FromCache,
		"events", wr.Events,
		"categories", wr.Categories,
		"duration_ms", rep.Duration.Milliseconds(),
	)
	return rep, nil
}

func (r *Refresher) count(result string, n int) {
	if r.metrics == nil || n == 0 {
		return
	}
	r.metrics.FeedFetchesTotal.WithLabelValues(result).Add(float64(n))
}

// Schedule registers RunOnce on a standard five-field cron spec evaluated in
// loc. Calling it again replaces the previous schedule. Runs that would
// overlap a run still in progress are skipped.
func (r *Refresher) Schedule(ctx context.Context, spec string, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron == nil {
		r.cron = cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		)
	}
	if r.entryID != 0 {
		r.cron.Remove(r.entryID)
		r.entryID = 0
	}

	id, err := r.cron.AddFunc(spec, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("refresh: bad schedule %q: %w", spec, err)
	}
	r.entryID = id
	return nil
}

// Next reports the next scheduled run, or the zero time when nothing is scheduled.
func (r *Refresher) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil || r.entryID == 0 {
		return time.Time{}
	}
	return r.cron.Entry(r.entryID).Next
}

func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil && !r.started {
		r.cron.Start()
		r.started = true
	}
}

// Stop halts the scheduler and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if r.cron == nil || !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	stopCtx := r.cron.Stop()
	r.mu.Unlock()
	<-stopCtx.Done()
}
