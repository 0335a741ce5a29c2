package models

// NearbyArrivalsRequest asks for arrivals around a point. The point is
// optional: when omitted the configured home location is used.
type NearbyArrivalsRequest struct {
	// Point is the search center. Nil means the configured home location.
	Point *Point `json:"point,omitempty"`

	// RadiusMeters overrides the configured search radius. Zero keeps it.
	RadiusMeters int `json:"radiusMeters,omitempty"`

	// MaxResults overrides the configured result cap. Zero keeps it.
	MaxResults int `json:"maxResults,omitempty"`
}

// Arrival is one predicted bus arrival.
type Arrival struct {
	Line         string   `json:"line"`
	Destination  string   `json:"destination"`
	Minutes      int      `json:"minutes"`
	StopID       string   `json:"stopId"`
	StopName     string   `json:"stopName,omitempty"`
	StopDistance *float64 `json:"stopDistance,omitempty"`
	BusDistance  *float64 `json:"busDistance,omitempty"`
}

// NearbyArrivalsResponse is the result of a nearby arrivals query. Count and
// Speech always describe the Arrivals list, so an empty list carries the
// spoken "no buses" sentence with count zero.
type NearbyArrivalsResponse struct {
	Arrivals   []Arrival `json:"arrivals"`
	StopsCount int       `json:"stopsCount"`
	Count      int       `json:"count"`
	Speech     string    `json:"speech"`

	// Error is set, with an empty arrival list, when the query could not
	// run at all, e.g. no location is configured.
	Error string `json:"error,omitempty"`
}

// Stop is a bus stop discovered by a radius search.
type Stop struct {
	StopID   string   `json:"stopId"`
	StopName string   `json:"stopName"`
	Distance int      `json:"distance"`
	Lines    []string `json:"lines"`
}

// NearbyStopsResponse is the result of a nearby stops query.
type NearbyStopsResponse struct {
	Stops []Stop `json:"stops"`
	Count int    `json:"count"`
}
