// Package transit defines the bus arrival domain model and the aggregation
// service that combines a radius search with explicitly watched stops.
package transit

import "sort"

// Stop is a bus stop discovered by a radius search.
type Stop struct {
	// ID is the network-stable stop identifier.
	ID string `json:"stop_id"`

	// Name is the human-readable stop name.
	Name string `json:"stop_name"`

	// Distance is the distance in meters from the query point.
	Distance int `json:"distance"`

	// Lines are the deduplicated labels of the lines serving this stop.
	Lines []string `json:"lines"`
}

// Arrival is one predicted bus arrival. Records are created fresh on every
// polling cycle and never mutated afterwards.
type Arrival struct {
	// Line is the bus line label.
	Line string `json:"line"`

	// Destination is the line's headsign for this direction.
	Destination string `json:"destination"`

	// Minutes until arrival; 0 means arriving now.
	Minutes int `json:"minutes"`

	// StopID identifies the stop this prediction belongs to.
	StopID string `json:"stop_id"`

	// StopName is empty when the record came from a radius search whose
	// stop carried no name.
	StopName string `json:"stop_name,omitempty"`

	// StopDistance is the stop's distance in meters from the query point.
	// Nil for records derived from an explicit stop lookup, which carries
	// no distance to the caller.
	StopDistance *float64 `json:"stop_distance"`

	// BusDistance is the approaching vehicle's distance in meters along
	// its route, when the feed reports one.
	BusDistance *float64 `json:"bus_distance"`
}

// LineEstimates collects one stop's arrival state for a single line, as
// parsed from a per-stop arrivals lookup.
type LineEstimates struct {
	// Destination is the line's headsign. The feed repeats a line once
	// per approaching vehicle; the latest entry's destination wins.
	Destination string

	// Minutes until each predicted arrival, in feed order.
	Minutes []int

	// BusDistances holds the approaching vehicles' distances in meters,
	// parallel to Minutes.
	BusDistances []float64
}

// Merge concatenates the given arrival lists and stable-sorts the result by
// Minutes ascending, so ties keep their original relative order.
func Merge(lists ...[]Arrival) []Arrival {
	total := 0
	for _, l := range lists {
		total += len(l)
	}

	merged := make([]Arrival, 0, total)
	for _, l := range lists {
		merged = append(merged, l...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Minutes < merged[j].Minutes
	})

	return merged
}

// DistinctStops counts the distinct stop IDs contributing to the list,
// ignoring records with no stop ID.
func DistinctStops(arrivals []Arrival) int {
	seen := make(map[string]struct{})
	for _, a := range arrivals {
		if a.StopID == "" {
			continue
		}
		seen[a.StopID] = struct{}{}
	}
	return len(seen)
}

// Truncate returns at most max arrivals, or the full list when max <= 0.
func Truncate(arrivals []Arrival, max int) []Arrival {
	if max <= 0 || len(arrivals) <= max {
		return arrivals
	}
	return arrivals[:max]
}
