// Package handler provides HTTP handlers for the cercabus API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cercabus/cercabus/internal/api/middleware"
	"github.com/cercabus/cercabus/internal/api/models"
	"github.com/cercabus/cercabus/internal/api/response"
	"github.com/cercabus/cercabus/internal/config"
	"github.com/cercabus/cercabus/internal/speech"
	"github.com/cercabus/cercabus/internal/transit"
	"github.com/cercabus/cercabus/internal/transit/emt"
)

// ArrivalsHandler handles arrival and stop discovery endpoints.
type ArrivalsHandler struct {
	transit      *transit.Service
	home         *config.Location
	radiusMeters int
	maxResults   int
	metrics      *middleware.ProviderMetrics
	logger       zerolog.Logger
}

// ArrivalsHandlerConfig holds configuration for the ArrivalsHandler.
type ArrivalsHandlerConfig struct {
	// Transit is the aggregation service.
	Transit *transit.Service

	// Home is the default search center. Nil means requests must carry
	// their own point.
	Home *config.Location

	// RadiusMeters is the default search radius.
	RadiusMeters int

	// MaxResults is the default result cap.
	MaxResults int

	// Metrics records provider call durations. Optional.
	Metrics *middleware.ProviderMetrics

	// Logger for handler operations.
	Logger zerolog.Logger
}

// NewArrivalsHandler creates a new ArrivalsHandler.
func NewArrivalsHandler(cfg ArrivalsHandlerConfig) *ArrivalsHandler {
	return &ArrivalsHandler{
		transit:      cfg.Transit,
		home:         cfg.Home,
		radiusMeters: cfg.RadiusMeters,
		maxResults:   cfg.MaxResults,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

// NearbyArrivals handles POST /v1/arrivals:nearby - arrivals around a point.
//
// The response is always 200 with a well-formed body: upstream failures and a
// missing location degrade to an empty arrival list with a spoken sentence
// describing the situation, never an error status. Validation problems on an
// explicitly supplied body are still 400s.
func (h *ArrivalsHandler) NearbyArrivals(w http.ResponseWriter, r *http.Request) {
	var input models.NearbyArrivalsRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fieldErrors := validateArrivalsInput(&input); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid request", fieldErrors)
		return
	}

	lat, lon, ok := h.resolvePoint(input.Point)
	if !ok {
		h.logger.Debug().Msg("arrivals request without point and no home location configured")
		response.JSON(w, r, http.StatusOK, models.NearbyArrivalsResponse{
			Arrivals: []models.Arrival{},
			Speech:   speech.NoLocation,
			Error:    "no location configured",
		})
		return
	}

	radius := h.radiusMeters
	if input.RadiusMeters != 0 {
		radius = input.RadiusMeters
	}
	maxResults := h.maxResults
	if input.MaxResults != 0 {
		maxResults = input.MaxResults
	}

	start := time.Now()
	summary := h.transit.NearbySummary(r.Context(), lon, lat, radius, maxResults)
	if h.metrics != nil {
		h.metrics.RecordRequest(emt.ProviderName, middleware.OpNearbyArrivals, time.Since(start), nil)
	}

	response.JSON(w, r, http.StatusOK, models.NearbyArrivalsResponse{
		Arrivals:   toAPIArrivals(summary.Arrivals),
		StopsCount: summary.StopsCount,
		Count:      len(summary.Arrivals),
		Speech:     speech.Render(summary.Arrivals, 0),
	})
}

// StopArrivals handles GET /v1/stops/{stopId}/arrivals - arrivals at one
// fixed stop, no radius search. Shares the nearby response shape so voice
// callers can switch between dynamic and fixed-stop mode transparently.
func (h *ArrivalsHandler) StopArrivals(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopId")
	if stopID == "" {
		response.BadRequest(w, r, "missing stop ID", nil)
		return
	}

	maxResults := h.maxResults
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < config.MinMaxResults || v > config.MaxMaxResults {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
				{Field: "maxResults", Message: "must be between 1 and 20"},
			})
			return
		}
		maxResults = v
	}

	start := time.Now()
	summary := h.transit.StopSummary(r.Context(), stopID, maxResults)
	if h.metrics != nil {
		h.metrics.RecordRequest(emt.ProviderName, middleware.OpStopArrivals, time.Since(start), nil)
	}

	response.JSON(w, r, http.StatusOK, models.NearbyArrivalsResponse{
		Arrivals:   toAPIArrivals(summary.Arrivals),
		StopsCount: summary.StopsCount,
		Count:      len(summary.Arrivals),
		Speech:     speech.Render(summary.Arrivals, 0),
	})
}

// NearbyStops handles GET /v1/stops/nearby - stop discovery around a point.
func (h *ArrivalsHandler) NearbyStops(w http.ResponseWriter, r *http.Request) {
	point, fieldErrors := pointFromQuery(r)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrors)
		return
	}

	lat, lon, ok := h.resolvePoint(point)
	if !ok {
		response.BadRequest(w, r, "no location configured and no lat/lon supplied", nil)
		return
	}

	radius := h.radiusMeters
	if raw := r.URL.Query().Get("radius"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < config.MinRadiusMeters || v > config.MaxRadiusMeters {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
				{Field: "radius", Message: "must be between 50 and 1000"},
			})
			return
		}
		radius = v
	}

	start := time.Now()
	stops := h.transit.NearbyStops(r.Context(), lon, lat, radius)
	if h.metrics != nil {
		h.metrics.RecordRequest(emt.ProviderName, middleware.OpNearbyStops, time.Since(start), nil)
	}

	items := make([]models.Stop, 0, len(stops))
	for _, s := range stops {
		items = append(items, models.Stop{
			StopID:   s.ID,
			StopName: s.Name,
			Distance: s.Distance,
			Lines:    s.Lines,
		})
	}

	response.JSON(w, r, http.StatusOK, models.NearbyStopsResponse{
		Stops: items,
		Count: len(items),
	})
}

// resolvePoint picks the request point or falls back to the configured home.
func (h *ArrivalsHandler) resolvePoint(p *models.Point) (lat, lon float64, ok bool) {
	if p != nil {
		return p.Lat, p.Lon, true
	}
	if h.home != nil {
		return h.home.Latitude, h.home.Longitude, true
	}
	return 0, 0, false
}

func validateArrivalsInput(input *models.NearbyArrivalsRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Point != nil {
		if input.Point.Lat < -90 || input.Point.Lat > 90 {
			errs = append(errs, models.FieldError{Field: "point.lat", Message: "must be between -90 and 90"})
		}
		if input.Point.Lon < -180 || input.Point.Lon > 180 {
			errs = append(errs, models.FieldError{Field: "point.lon", Message: "must be between -180 and 180"})
		}
	}
	if input.RadiusMeters != 0 &&
		(input.RadiusMeters < config.MinRadiusMeters || input.RadiusMeters > config.MaxRadiusMeters) {
		errs = append(errs, models.FieldError{Field: "radiusMeters", Message: "must be between 50 and 1000"})
	}
	if input.MaxResults != 0 &&
		(input.MaxResults < config.MinMaxResults || input.MaxResults > config.MaxMaxResults) {
		errs = append(errs, models.FieldError{Field: "maxResults", Message: "must be between 1 and 20"})
	}

	return errs
}

func pointFromQuery(r *http.Request) (*models.Point, []models.FieldError) {
	latRaw := r.URL.Query().Get("lat")
	lonRaw := r.URL.Query().Get("lon")
	if latRaw == "" && lonRaw == "" {
		return nil, nil
	}

	var errs []models.FieldError
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || lat < -90 || lat > 90 {
		errs = append(errs, models.FieldError{Field: "lat", Message: "must be a number between -90 and 90"})
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil || lon < -180 || lon > 180 {
		errs = append(errs, models.FieldError{Field: "lon", Message: "must be a number between -180 and 180"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	return &models.Point{Lat: lat, Lon: lon}, nil
}

func toAPIArrivals(arrivals []transit.Arrival) []models.Arrival {
	items := make([]models.Arrival, 0, len(arrivals))
	for _, a := range arrivals {
		items = append(items, models.Arrival{
			Line:         a.Line,
			Destination:  a.Destination,
			Minutes:      a.Minutes,
			StopID:       a.StopID,
			StopName:     a.StopName,
			StopDistance: a.StopDistance,
			BusDistance:  a.BusDistance,
		})
	}
	return items
}
