package models

// Watch is a saved location polled for nearby arrivals.
type Watch struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	Point        Point     `json:"point"`
	RadiusMeters int       `json:"radiusMeters"`
	MaxResults   int       `json:"maxResults"`
	ExtraStops   []string  `json:"extraStops,omitempty"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    Timestamp `json:"createdAt"`
	UpdatedAt    Timestamp `json:"updatedAt"`
}

// WatchCreateRequest creates a new watch. Zero radius and max results take
// the service defaults.
type WatchCreateRequest struct {
	Label        string   `json:"label"`
	Point        Point    `json:"point"`
	RadiusMeters int      `json:"radiusMeters,omitempty"`
	MaxResults   int      `json:"maxResults,omitempty"`
	ExtraStops   []string `json:"extraStops,omitempty"`
	Enabled      *bool    `json:"enabled,omitempty"`
}

// WatchUpdateRequest partially updates a watch. Nil fields are unchanged.
type WatchUpdateRequest struct {
	Label        *string  `json:"label,omitempty"`
	Point        *Point   `json:"point,omitempty"`
	RadiusMeters *int     `json:"radiusMeters,omitempty"`
	MaxResults   *int     `json:"maxResults,omitempty"`
	ExtraStops   []string `json:"extraStops,omitempty"`
	Enabled      *bool    `json:"enabled,omitempty"`
}

// PagedWatches is a page of watches.
type PagedWatches struct {
	Items []Watch           `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
