package watch

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL watch repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const watchColumns = `
	id, label, lat, lon, radius_meters, max_results,
	extra_stops, enabled, created_at, updated_at
`

// Get retrieves a watch by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Watch, error) {
	query := `SELECT ` + watchColumns + ` FROM watches WHERE id = $1`

	var w Watch
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&w.ID,
		&w.Label,
		&w.Point.Lat,
		&w.Point.Lon,
		&w.RadiusMeters,
		&w.MaxResults,
		&w.ExtraStops,
		&w.Enabled,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWatchNotFound
		}
		return nil, err
	}

	return &w, nil
}

// List retrieves watches with pagination, newest first.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	query := `
		SELECT ` + watchColumns + `
		FROM watches
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, fetchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	watches, err := scanWatches(rows)
	if err != nil {
		return nil, err
	}

	result := &ListResult{Items: watches}
	if len(watches) > limit {
		result.Items = watches[:limit]
		result.NextCursor = watches[limit-1].ID
	}

	return result, nil
}

// ListEnabled retrieves every enabled watch for the polling worker.
func (r *PostgresRepository) ListEnabled(ctx context.Context) ([]*Watch, error) {
	query := `
		SELECT ` + watchColumns + `
		FROM watches
		WHERE enabled
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWatches(rows)
}

func scanWatches(rows pgx.Rows) ([]*Watch, error) {
	var watches []*Watch
	for rows.Next() {
		var w Watch
		err := rows.Scan(
			&w.ID,
			&w.Label,
			&w.Point.Lat,
			&w.Point.Lon,
			&w.RadiusMeters,
			&w.MaxResults,
			&w.ExtraStops,
			&w.Enabled,
			&w.CreatedAt,
			&w.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		watches = append(watches, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return watches, nil
}

// Create creates a new watch.
func (r *PostgresRepository) Create(ctx context.Context, w *Watch) error {
	query := `
		INSERT INTO watches (
			id, label, lat, lon, radius_meters, max_results,
			extra_stops, enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		w.ID,
		w.Label,
		w.Point.Lat,
		w.Point.Lon,
		w.RadiusMeters,
		w.MaxResults,
		w.ExtraStops,
		w.Enabled,
		w.CreatedAt,
		w.UpdatedAt,
	)
	return err
}

// Update updates an existing watch.
func (r *PostgresRepository) Update(ctx context.Context, w *Watch) error {
	query := `
		UPDATE watches SET
			label = $2,
			lat = $3,
			lon = $4,
			radius_meters = $5,
			max_results = $6,
			extra_stops = $7,
			enabled = $8,
			updated_at = $9
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		w.ID,
		w.Label,
		w.Point.Lat,
		w.Point.Lon,
		w.RadiusMeters,
		w.MaxResults,
		w.ExtraStops,
		w.Enabled,
		w.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrWatchNotFound
	}

	return nil
}

// Delete deletes a watch by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM watches WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
