// Package watch provides management of arrival watches: saved locations
// polled periodically for nearby bus arrivals.
package watch

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrWatchNotFound = errors.New("watch not found")
)

// Watch is a saved location polled for nearby arrivals.
type Watch struct {
	ID           string
	Label        string
	Point        Point
	RadiusMeters int
	MaxResults   int
	ExtraStops   []string
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}
