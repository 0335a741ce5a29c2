package transit

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Provider is the transit data source behind the aggregation service.
type Provider interface {
	// Authenticate establishes or replaces the provider session.
	Authenticate(ctx context.Context) error

	// Authenticated reports whether the session is usable.
	Authenticated() bool

	// NearbyArrivals returns arrivals for stops within the radius, sorted
	// by minutes ascending. Fail-soft: empty on any upstream problem.
	NearbyArrivals(ctx context.Context, lon, lat float64, radiusMeters, maxResults int) []Arrival

	// ArrivalsForStop returns per-line estimates for a single stop.
	ArrivalsForStop(ctx context.Context, stopID string) (map[string]*LineEstimates, error)

	// StopsNear returns the stops within the radius, in provider order.
	StopsNear(ctx context.Context, lon, lat float64, radiusMeters int) ([]Stop, error)

	// StopDetail resolves a stop's name for explicitly watched stops.
	StopDetail(ctx context.Context, stopID string) (*Stop, error)

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the aggregation service.
type ServiceConfig struct {
	// Provider is the transit data provider.
	Provider Provider

	// ExtraStops are stop IDs queried on every cycle in addition to the
	// radius search.
	ExtraStops []string

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service aggregates arrivals from a radius search and the configured extra
// stops into one ordered list. It holds no state beyond the provider session
// and performs no caching: every summary goes to the network.
type Service struct {
	provider   Provider
	extraStops []string
	logger     zerolog.Logger

	// authMu serializes re-authentication so concurrent summaries trigger
	// a single login instead of one per caller.
	authMu sync.Mutex
}

// Summary is one aggregation cycle's result.
type Summary struct {
	// Arrivals is the merged, minutes-sorted, truncated list.
	Arrivals []Arrival

	// StopsCount is the number of distinct stops that contributed.
	StopsCount int
}

// NewService creates a new aggregation service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		provider:   cfg.Provider,
		extraStops: cfg.ExtraStops,
		logger:     cfg.Logger,
	}
}

// NearbySummary aggregates arrivals around the given point.
//
// Failures are absorbed at the smallest boundary: an extra stop whose lookup
// fails is logged and skipped, and never suppresses the radius results (or
// the other extra stops). An unauthenticated session that cannot be
// re-established yields an empty summary, not an error, so the polling caller
// reports "no buses" rather than breaking.
func (s *Service) NearbySummary(ctx context.Context, lon, lat float64, radiusMeters, maxResults int) *Summary {
	return s.SummarizeWithStops(ctx, lon, lat, radiusMeters, maxResults, s.extraStops)
}

// SummarizeWithStops aggregates like NearbySummary but with an explicit
// extra-stop list, for callers that watch different stops per location.
func (s *Service) SummarizeWithStops(ctx context.Context, lon, lat float64, radiusMeters, maxResults int, extraStops []string) *Summary {
	s.ensureSession(ctx)

	// Radius search first, untruncated so extra-stop arrivals compete
	// fairly for the final slots.
	arrivals := s.provider.NearbyArrivals(ctx, lon, lat, radiusMeters, 0)

	for _, stopID := range extraStops {
		arrivals = append(arrivals, s.watchedStopArrivals(ctx, stopID)...)
	}

	merged := Merge(arrivals)
	return &Summary{
		Arrivals:   Truncate(merged, maxResults),
		StopsCount: DistinctStops(merged),
	}
}

// StopSummary aggregates arrivals for a single fixed stop, skipping the
// radius search entirely. Same fail-soft contract as NearbySummary.
func (s *Service) StopSummary(ctx context.Context, stopID string, maxResults int) *Summary {
	s.ensureSession(ctx)

	merged := Merge(s.watchedStopArrivals(ctx, stopID))
	return &Summary{
		Arrivals:   Truncate(merged, maxResults),
		StopsCount: DistinctStops(merged),
	}
}

// NearbyStops discovers stops around the given point. Fail-soft like the
// arrival path: upstream problems yield an empty list.
func (s *Service) NearbyStops(ctx context.Context, lon, lat float64, radiusMeters int) []Stop {
	s.ensureSession(ctx)

	stops, err := s.provider.StopsNear(ctx, lon, lat, radiusMeters)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", s.provider.Name()).Msg("stop discovery failed")
		return []Stop{}
	}
	return stops
}

// watchedStopArrivals fetches one extra stop's arrivals and flattens them.
// Extra-stop records carry the stop name when the detail lookup succeeds but
// no stop distance: the per-stop endpoint has no notion of the caller's
// location.
func (s *Service) watchedStopArrivals(ctx context.Context, stopID string) []Arrival {
	stopName := ""
	if detail, err := s.provider.StopDetail(ctx, stopID); err == nil {
		stopName = detail.Name
	} else {
		s.logger.Debug().Err(err).Str("stop_id", stopID).Msg("stop detail lookup failed")
	}

	lines, err := s.provider.ArrivalsForStop(ctx, stopID)
	if err != nil {
		s.logger.Warn().Err(err).Str("stop_id", stopID).Msg("watched stop lookup failed, skipping")
		return nil
	}

	var arrivals []Arrival
	for line, le := range lines {
		for i, minutes := range le.Minutes {
			a := Arrival{
				Line:        line,
				Destination: le.Destination,
				Minutes:     minutes,
				StopID:      stopID,
				StopName:    stopName,
			}
			if i < len(le.BusDistances) {
				busDistance := le.BusDistances[i]
				a.BusDistance = &busDistance
			}
			arrivals = append(arrivals, a)
		}
	}
	return arrivals
}

// ensureSession authenticates lazily and re-authenticates after a failed
// session. Authentication failure is logged, not returned: subsequent
// provider calls degrade to empty results.
func (s *Service) ensureSession(ctx context.Context) {
	if s.provider.Authenticated() {
		return
	}

	s.authMu.Lock()
	defer s.authMu.Unlock()

	// A concurrent caller may have logged in while we waited for the lock.
	if s.provider.Authenticated() {
		return
	}
	if err := s.provider.Authenticate(ctx); err != nil {
		s.logger.Warn().Err(err).Str("provider", s.provider.Name()).Msg("provider authentication failed")
	}
}
