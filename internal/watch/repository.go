package watch

import "context"

// ListOptions contains options for listing watches.
type ListOptions struct {
	Limit  int
	Cursor string
}

// ListResult contains the results of listing watches.
type ListResult struct {
	Items      []*Watch
	NextCursor string
}

// Repository defines the interface for watch persistence.
type Repository interface {
	// Get retrieves a watch by ID. Returns ErrWatchNotFound when absent.
	Get(ctx context.Context, id string) (*Watch, error)

	// List retrieves watches with pagination, newest first.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// ListEnabled retrieves every enabled watch, for the polling worker.
	ListEnabled(ctx context.Context) ([]*Watch, error)

	// Create creates a new watch.
	Create(ctx context.Context, w *Watch) error

	// Update updates an existing watch.
	Update(ctx context.Context, w *Watch) error

	// Delete deletes a watch by ID.
	Delete(ctx context.Context, id string) error
}
