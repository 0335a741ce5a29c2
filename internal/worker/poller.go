// Package worker polls arrival summaries for the configured watches and
// publishes them as snapshots.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cercabus/cercabus/internal/config"
	"github.com/cercabus/cercabus/internal/speech"
	"github.com/cercabus/cercabus/internal/transit"
	"github.com/cercabus/cercabus/internal/watch"
)

// Poll tuning defaults.
const (
	DefaultConcurrency = 4
	DefaultTimeout     = 30 * time.Second
)

// WatchSource lists the watches due for polling. Satisfied by *watch.Service.
type WatchSource interface {
	Enabled(ctx context.Context) ([]*watch.Watch, error)
}

// Poller runs poll cycles: for every enabled watch it aggregates nearby
// arrivals, renders the speech line and publishes a snapshot.
type Poller struct {
	transit   *transit.Service
	watches   WatchSource
	publisher Publisher
	logger    zerolog.Logger

	home         *config.Location
	radiusMeters int
	maxResults   int
	extraStops   []string

	interval    time.Duration
	concurrency int
	timeout     time.Duration

	metrics *PollMetrics
}

// PollerConfig holds configuration for creating a Poller.
type PollerConfig struct {
	Transit   *transit.Service
	Publisher Publisher
	Logger    zerolog.Logger

	// Watches is optional; nil when running without a database. The poller
	// then falls back to a single target at the home location.
	Watches WatchSource

	// Home is the fallback poll center, nil when not configured.
	Home *config.Location

	// RadiusMeters, MaxResults and ExtraStops apply to the home fallback
	// target only; saved watches carry their own.
	RadiusMeters int
	MaxResults   int
	ExtraStops   []string

	// Interval between poll cycles. Zero means the default.
	Interval time.Duration

	// Concurrency is the number of watches polled in parallel.
	Concurrency int

	// Timeout bounds a single watch's poll.
	Timeout time.Duration
}

// PollMetrics tracks poll cycle statistics.
type PollMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalCycles        int64
	PublishedSnapshots int64
	FailedSnapshots    int64

	// Timings
	LastCycleAt       time.Time
	LastCycleDuration time.Duration
	TotalDuration     time.Duration
}

// PollResult contains the result of one poll cycle.
type PollResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	TotalWatches int
	Published    int
	Failed       int
	Errors       []PollError
}

// PollError represents a failure for a single watch during a cycle.
type PollError struct {
	WatchID string
	Label   string
	Error   string
}

// NewPoller creates a new poller.
func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	radius := cfg.RadiusMeters
	if radius == 0 {
		radius = config.DefaultRadiusMeters
	}
	maxResults := cfg.MaxResults
	if maxResults == 0 {
		maxResults = config.DefaultMaxResults
	}

	return &Poller{
		transit:      cfg.Transit,
		watches:      cfg.Watches,
		publisher:    cfg.Publisher,
		logger:       cfg.Logger,
		home:         cfg.Home,
		radiusMeters: radius,
		maxResults:   maxResults,
		extraStops:   cfg.ExtraStops,
		interval:     interval,
		concurrency:  concurrency,
		timeout:      timeout,
		metrics:      &PollMetrics{},
	}
}

// Start runs poll cycles at the configured interval until the context is
// cancelled. The first cycle runs immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info().
		Dur("interval", p.interval).
		Int("concurrency", p.concurrency).
		Msg("starting poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Run(ctx)
		}
	}
}

// Run executes one poll cycle across all targets.
func (p *Poller) Run(ctx context.Context) *PollResult {
	startTime := time.Now()
	targets := p.targets(ctx)
	result := &PollResult{
		StartTime:    startTime,
		TotalWatches: len(targets),
	}

	p.logger.Info().
		Int("total_watches", result.TotalWatches).
		Msg("starting poll cycle")

	targetsChan := make(chan *watch.Watch, len(targets))
	resultsChan := make(chan watchResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.pollWorker(ctx, targetsChan, resultsChan)
		}()
	}

	for _, w := range targets {
		targetsChan <- w
	}
	close(targetsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for wr := range resultsChan {
		if wr.err == nil {
			result.Published++
		} else {
			result.Failed++
			result.Errors = append(result.Errors, PollError{
				WatchID: wr.watchID,
				Label:   wr.label,
				Error:   wr.err.Error(),
			})
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	p.updateMetrics(result)

	p.logger.Info().
		Dur("duration", result.Duration).
		Int("published", result.Published).
		Int("failed", result.Failed).
		Msg("poll cycle completed")

	return result
}

// targets resolves this cycle's poll targets: the enabled watches when a
// watch source is configured and has any, otherwise a synthetic target at
// the home location.
func (p *Poller) targets(ctx context.Context) []*watch.Watch {
	if p.watches != nil {
		watches, err := p.watches.Enabled(ctx)
		if err != nil {
			p.logger.Error().Err(err).Msg("listing enabled watches failed")
		} else if len(watches) > 0 {
			return watches
		}
	}

	if p.home == nil {
		return nil
	}

	return []*watch.Watch{{
		Label:        "home",
		Point:        watch.Point{Lat: p.home.Latitude, Lon: p.home.Longitude},
		RadiusMeters: p.radiusMeters,
		MaxResults:   p.maxResults,
		ExtraStops:   p.extraStops,
	}}
}

type watchResult struct {
	watchID string
	label   string
	err     error
}

func (p *Poller) pollWorker(ctx context.Context, targets <-chan *watch.Watch, results chan<- watchResult) {
	for w := range targets {
		select {
		case <-ctx.Done():
			return
		default:
			results <- p.pollWatch(ctx, w)
		}
	}
}

// pollWatch aggregates and publishes one watch. The aggregation itself is
// fail-soft, so the only error here is a publish failure.
func (p *Poller) pollWatch(ctx context.Context, w *watch.Watch) watchResult {
	watchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	summary := p.transit.SummarizeWithStops(watchCtx, w.Point.Lon, w.Point.Lat, w.RadiusMeters, w.MaxResults, w.ExtraStops)

	arrivals := summary.Arrivals
	if arrivals == nil {
		arrivals = []transit.Arrival{}
	}

	snap := &Snapshot{
		WatchID:    w.ID,
		Label:      w.Label,
		Arrivals:   arrivals,
		StopsCount: summary.StopsCount,
		Count:      len(arrivals),
		Speech:     speech.Render(arrivals, 0),
		PolledAt:   time.Now().UTC(),
	}

	err := p.publisher.Publish(watchCtx, snap)
	if err != nil {
		p.logger.Error().Err(err).
			Str("watch_id", w.ID).
			Str("label", w.Label).
			Msg("snapshot publish failed")
	}

	return watchResult{watchID: w.ID, label: w.Label, err: err}
}

func (p *Poller) updateMetrics(result *PollResult) {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	p.metrics.TotalCycles++
	p.metrics.PublishedSnapshots += int64(result.Published)
	p.metrics.FailedSnapshots += int64(result.Failed)
	p.metrics.LastCycleAt = result.EndTime
	p.metrics.LastCycleDuration = result.Duration
	p.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (p *Poller) GetMetrics() PollMetrics {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()

	return PollMetrics{
		TotalCycles:        p.metrics.TotalCycles,
		PublishedSnapshots: p.metrics.PublishedSnapshots,
		FailedSnapshots:    p.metrics.FailedSnapshots,
		LastCycleAt:        p.metrics.LastCycleAt,
		LastCycleDuration:  p.metrics.LastCycleDuration,
		TotalDuration:      p.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns the current metrics as a map.
func (p *Poller) MetricsSnapshot() map[string]interface{} {
	m := p.GetMetrics()
	return map[string]interface{}{
		"total_cycles":        m.TotalCycles,
		"published_snapshots": m.PublishedSnapshots,
		"failed_snapshots":    m.FailedSnapshots,
		"last_cycle_at":       m.LastCycleAt,
		"last_cycle_duration": m.LastCycleDuration.String(),
		"total_duration":      m.TotalDuration.String(),
	}
}
