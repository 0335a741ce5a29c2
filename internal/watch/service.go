package watch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cercabus/cercabus/internal/api/models"
	"github.com/cercabus/cercabus/internal/config"
)

// Validation constants.
const (
	MaxLabelLength = 80
	MaxExtraStops  = 10
)

// Service provides watch operations.
type Service struct {
	repo Repository
}

// NewService creates a new watch service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List retrieves watches with pagination.
func (s *Service) List(ctx context.Context, limit int) (*models.PagedWatches, error) {
	result, err := s.repo.List(ctx, ListOptions{Limit: limit})
	if err != nil {
		return nil, err
	}

	items := make([]models.Watch, 0, len(result.Items))
	for _, w := range result.Items {
		items = append(items, s.toAPIWatch(w))
	}

	var nextCursor *string
	if result.NextCursor != "" {
		nextCursor = &result.NextCursor
	}

	return &models.PagedWatches{
		Items: items,
		Meta: models.PagedResponseMeta{
			Limit:      limit,
			NextCursor: nextCursor,
		},
	}, nil
}

// Get retrieves a watch by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Watch, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := s.toAPIWatch(w)
	return &result, nil
}

// Enabled retrieves every enabled watch as domain records, for the worker.
func (s *Service) Enabled(ctx context.Context) ([]*Watch, error) {
	return s.repo.ListEnabled(ctx)
}

// Create creates a new watch. Zero radius and max results take the service
// defaults.
func (s *Service) Create(ctx context.Context, input *models.WatchCreateRequest) (*models.Watch, error) {
	if fieldErrors := s.validateCreateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	now := time.Now()
	w := &Watch{
		ID:           "wch_" + uuid.New().String()[:22],
		Label:        input.Label,
		Point:        Point{Lat: input.Point.Lat, Lon: input.Point.Lon},
		RadiusMeters: input.RadiusMeters,
		MaxResults:   input.MaxResults,
		ExtraStops:   normalizeStops(input.ExtraStops),
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if w.RadiusMeters == 0 {
		w.RadiusMeters = config.DefaultRadiusMeters
	}
	if w.MaxResults == 0 {
		w.MaxResults = config.DefaultMaxResults
	}
	if input.Enabled != nil {
		w.Enabled = *input.Enabled
	}

	if err := s.repo.Create(ctx, w); err != nil {
		return nil, err
	}

	result := s.toAPIWatch(w)
	return &result, nil
}

// Update updates an existing watch.
func (s *Service) Update(ctx context.Context, id string, input *models.WatchUpdateRequest) (*models.Watch, error) {
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrWatchNotFound) {
			return nil, ErrWatchNotFound
		}
		return nil, err
	}

	if fieldErrors := s.validateUpdateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	if input.Label != nil {
		w.Label = *input.Label
	}
	if input.Point != nil {
		w.Point = Point{Lat: input.Point.Lat, Lon: input.Point.Lon}
	}
	if input.RadiusMeters != nil {
		w.RadiusMeters = *input.RadiusMeters
	}
	if input.MaxResults != nil {
		w.MaxResults = *input.MaxResults
	}
	if input.ExtraStops != nil {
		w.ExtraStops = normalizeStops(input.ExtraStops)
	}
	if input.Enabled != nil {
		w.Enabled = *input.Enabled
	}
	w.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, w); err != nil {
		return nil, err
	}

	result := s.toAPIWatch(w)
	return &result, nil
}

// Delete deletes a watch by ID.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) validateCreateInput(input *models.WatchCreateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Label == "" {
		errs = append(errs, models.FieldError{Field: "label", Message: "is required"})
	} else if len(input.Label) > MaxLabelLength {
		errs = append(errs, models.FieldError{Field: "label", Message: "must be at most 80 characters"})
	}

	errs = append(errs, validatePoint(&input.Point)...)

	if input.RadiusMeters != 0 {
		errs = append(errs, validateRadius(input.RadiusMeters)...)
	}
	if input.MaxResults != 0 {
		errs = append(errs, validateMaxResults(input.MaxResults)...)
	}
	errs = append(errs, validateExtraStops(input.ExtraStops)...)

	return errs
}

func (s *Service) validateUpdateInput(input *models.WatchUpdateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Label != nil {
		if *input.Label == "" {
			errs = append(errs, models.FieldError{Field: "label", Message: "cannot be empty"})
		} else if len(*input.Label) > MaxLabelLength {
			errs = append(errs, models.FieldError{Field: "label", Message: "must be at most 80 characters"})
		}
	}
	if input.Point != nil {
		errs = append(errs, validatePoint(input.Point)...)
	}
	if input.RadiusMeters != nil {
		errs = append(errs, validateRadius(*input.RadiusMeters)...)
	}
	if input.MaxResults != nil {
		errs = append(errs, validateMaxResults(*input.MaxResults)...)
	}
	if input.ExtraStops != nil {
		errs = append(errs, validateExtraStops(input.ExtraStops)...)
	}

	return errs
}

func validatePoint(p *models.Point) []models.FieldError {
	var errs []models.FieldError

	if p.Lat < -90 || p.Lat > 90 {
		errs = append(errs, models.FieldError{
			Field:   "point.lat",
			Message: "must be between -90 and 90",
		})
	}
	if p.Lon < -180 || p.Lon > 180 {
		errs = append(errs, models.FieldError{
			Field:   "point.lon",
			Message: "must be between -180 and 180",
		})
	}

	return errs
}

func validateRadius(radius int) []models.FieldError {
	if radius < config.MinRadiusMeters || radius > config.MaxRadiusMeters {
		return []models.FieldError{{
			Field:   "radiusMeters",
			Message: "must be between 50 and 1000",
		}}
	}
	return nil
}

func validateMaxResults(max int) []models.FieldError {
	if max < config.MinMaxResults || max > config.MaxMaxResults {
		return []models.FieldError{{
			Field:   "maxResults",
			Message: "must be between 1 and 20",
		}}
	}
	return nil
}

func validateExtraStops(stops []string) []models.FieldError {
	if len(stops) > MaxExtraStops {
		return []models.FieldError{{
			Field:   "extraStops",
			Message: "must contain at most 10 stops",
		}}
	}
	for _, id := range stops {
		if strings.TrimSpace(id) == "" {
			return []models.FieldError{{
				Field:   "extraStops",
				Message: "must not contain empty stop IDs",
			}}
		}
	}
	return nil
}

func normalizeStops(stops []string) []string {
	out := make([]string, 0, len(stops))
	for _, id := range stops {
		out = append(out, strings.TrimSpace(id))
	}
	return out
}

// toAPIWatch converts a domain Watch to an API Watch.
func (s *Service) toAPIWatch(w *Watch) models.Watch {
	return models.Watch{
		ID:           w.ID,
		Label:        w.Label,
		Point:        models.Point{Lat: w.Point.Lat, Lon: w.Point.Lon},
		RadiusMeters: w.RadiusMeters,
		MaxResults:   w.MaxResults,
		ExtraStops:   w.ExtraStops,
		Enabled:      w.Enabled,
		CreatedAt:    models.Timestamp(w.CreatedAt),
		UpdatedAt:    models.Timestamp(w.UpdatedAt),
	}
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
