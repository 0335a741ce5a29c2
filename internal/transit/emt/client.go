// Package emt provides a client for the EMT Madrid Mobility Labs API.
package emt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cercabus/cercabus/internal/provider/resilience"
	"github.com/cercabus/cercabus/internal/transit"
)

const (
	// ProviderName identifies this transit provider.
	ProviderName = "emt-madrid"

	// DefaultBaseURL is the Mobility Labs OpenAPI base URL.
	DefaultBaseURL = "https://openapi.emtmadrid.es/v1"

	// Response envelope codes. Login reports success as "01", the data
	// endpoints as "00"; anything else is a failure.
	codeLoginOK = "01"
	codeDataOK  = "00"
)

// Predefined client errors.
var (
	// ErrNotAuthenticated is returned by queries when the session holds no
	// valid access token.
	ErrNotAuthenticated = errors.New("emt: session not authenticated")

	// ErrAuthFailed is returned when the login endpoint rejects the
	// credentials or answers with an unusable payload.
	ErrAuthFailed = errors.New("emt: authentication failed")
)

// authState tracks the session lifecycle explicitly, so "never logged in"
// and "login rejected" stay distinguishable in logs.
type authState int

const (
	authNone authState = iota
	authOK
	authFailed
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the EMT client.
type ClientConfig struct {
	// Email and Password are the Mobility Labs account credentials (required).
	Email    string
	Password string

	// BaseURL is the API base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Registry records call outcomes for provider health (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an EMT Madrid API client holding one authenticated session.
//
// The session token is the only mutable state, guarded by a mutex so one
// instance can be shared by concurrent request handlers and poll workers.
// Queries take a snapshot of the token; Authenticate swaps the session in
// one step when the login call resolves.
type Client struct {
	email      string
	password   string
	baseURL    string
	httpClient HTTPDoer
	registry   *resilience.Registry
	logger     zerolog.Logger

	mu    sync.Mutex
	token string
	state authState
}

// NewClient creates a new EMT client. The session starts unauthenticated.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		client := resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
		if cfg.Registry != nil {
			cfg.Registry.Register(ProviderName, client)
		}
		httpClient = client
	}

	return &Client{
		email:      cfg.Email,
		password:   cfg.Password,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Authenticated reports whether the session holds a usable access token.
func (c *Client) Authenticated() bool {
	_, ok := c.session()
	return ok
}

// session snapshots the current token and whether it is usable.
func (c *Client) session() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.state == authOK
}

// setSession replaces the session state.
func (c *Client) setSession(token string, state authState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.state = state
}

// Authenticate logs in with the configured credentials and stores the
// returned access token. Any failure (transport error, non-success code,
// missing token in the payload) marks the session as failed and clears the
// token; queries then short-circuit to empty results instead of erroring the
// polling loop. Calling again fully replaces the prior session state.
func (c *Client) Authenticate(ctx context.Context) error {
	c.setSession("", authFailed)

	url := fmt.Sprintf("%s/mobilitylabs/user/login/", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("email", c.email)
	req.Header.Set("password", c.password)
	req.Header.Set("Accept", "application/json")

	env, err := c.execute(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("emt login request failed")
		return fmt.Errorf("%w: %s", ErrAuthFailed, err.Error())
	}

	if env.Code != codeLoginOK {
		c.logger.Warn().
			Str("code", env.Code).
			Str("description", env.Description).
			Msg("emt login rejected")
		return fmt.Errorf("%w: code %s", ErrAuthFailed, env.Code)
	}

	var data []loginData
	if err := json.Unmarshal(env.Data, &data); err != nil || len(data) == 0 || data[0].AccessToken == "" {
		c.logger.Warn().Msg("emt login response missing access token")
		return fmt.Errorf("%w: malformed login payload", ErrAuthFailed)
	}

	c.setSession(data[0].AccessToken, authOK)
	c.logger.Debug().Msg("emt session authenticated")
	return nil
}

// StopsNear queries the stops within radiusMeters of the given point.
// Stops are returned in API order, nearest first; line labels are
// deduplicated. Requires a prior successful Authenticate.
func (c *Client) StopsNear(ctx context.Context, lon, lat float64, radiusMeters int) ([]transit.Stop, error) {
	token, ok := c.session()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	url := fmt.Sprintf("%s/transport/busemtmad/stops/arroundxy/%v/%v/%d/", c.baseURL, lon, lat, radiusMeters)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating stops request: %w", err)
	}
	setHeaders(req, token)

	env, err := c.execute(req)
	if err != nil {
		return nil, fmt.Errorf("fetching nearby stops: %w", err)
	}
	if env.Code != codeDataOK {
		return nil, fmt.Errorf("stops lookup failed: code %s (%s)", env.Code, env.Description)
	}

	var data []stopData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding stops payload: %w", err)
	}

	stops := make([]transit.Stop, 0, len(data))
	for i := range data {
		stops = append(stops, toStop(&data[i]))
	}
	return stops, nil
}

// ArrivalsForStop queries arrival estimates for one stop and groups them by
// line label. A stop with nothing scheduled yields an empty map. The feed
// repeats a line once per approaching vehicle, so repeated entries accumulate
// onto the line's estimate lists rather than replacing them.
func (c *Client) ArrivalsForStop(ctx context.Context, stopID string) (map[string]*transit.LineEstimates, error) {
	token, ok := c.session()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	body, err := json.Marshal(arrivesRequest{
		CultureInfo:           "ES",
		StopLabelRequired:     "Y",
		EstimationsRequired:   "Y",
		IncidencesNotRequired: "N",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding arrives request: %w", err)
	}

	url := fmt.Sprintf("%s/transport/busemtmad/stops/%s/arrives/", c.baseURL, stopID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating arrives request: %w", err)
	}
	setHeaders(req, token)
	req.Header.Set("Content-Type", "application/json")

	env, err := c.execute(req)
	if err != nil {
		return nil, fmt.Errorf("fetching arrivals for stop %s: %w", stopID, err)
	}
	if env.Code != codeDataOK {
		return nil, fmt.Errorf("arrivals lookup for stop %s failed: code %s (%s)", stopID, env.Code, env.Description)
	}

	var data []arrivesData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding arrivals payload: %w", err)
	}

	lines := make(map[string]*transit.LineEstimates)
	if len(data) == 0 {
		return lines, nil
	}

	for i := range data[0].Arrive {
		a := &data[0].Arrive[i]

		le, ok := lines[a.Line]
		if !ok {
			le = &transit.LineEstimates{}
			lines[a.Line] = le
		}
		le.Destination = a.Destination
		// estimateArrive is in seconds; whole minutes, truncated.
		le.Minutes = append(le.Minutes, a.EstimateArrive/60)
		le.BusDistances = append(le.BusDistances, a.DistanceBus)
	}

	return lines, nil
}

// StopDetail fetches the name of one stop, used when flattening arrivals for
// explicitly watched stops that never went through a radius search.
func (c *Client) StopDetail(ctx context.Context, stopID string) (*transit.Stop, error) {
	token, ok := c.session()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	url := fmt.Sprintf("%s/transport/busemtmad/stops/%s/detail/", c.baseURL, stopID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating stop detail request: %w", err)
	}
	setHeaders(req, token)

	env, err := c.execute(req)
	if err != nil {
		return nil, fmt.Errorf("fetching detail for stop %s: %w", stopID, err)
	}
	if env.Code != codeDataOK {
		return nil, fmt.Errorf("detail lookup for stop %s failed: code %s (%s)", stopID, env.Code, env.Description)
	}

	var data []detailData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding stop detail payload: %w", err)
	}
	if len(data) == 0 || len(data[0].Stops) == 0 {
		return nil, fmt.Errorf("stop %s not found", stopID)
	}

	return &transit.Stop{
		ID:   stopID,
		Name: data[0].Stops[0].Name,
	}, nil
}

// NearbyArrivals composes discovery and per-stop lookups: find stops within
// the radius, fetch every stop's arrivals, flatten, stable-sort by minutes
// and truncate to maxResults.
//
// This is the fail-soft boundary: an unauthenticated session returns an
// empty list immediately, and a failing lookup for one stop is logged and
// skipped so the remaining stops still contribute. A transient upstream
// problem degrades the poll to "no data" instead of erroring it.
func (c *Client) NearbyArrivals(ctx context.Context, lon, lat float64, radiusMeters, maxResults int) []transit.Arrival {
	if !c.Authenticated() {
		c.logger.Debug().Msg("skipping nearby arrivals: session not authenticated")
		return []transit.Arrival{}
	}

	stops, err := c.StopsNear(ctx, lon, lat, radiusMeters)
	if err != nil {
		c.recordFailure(err)
		c.logger.Warn().Err(err).Msg("nearby stop discovery failed")
		return []transit.Arrival{}
	}
	c.recordSuccess()

	arrivals := make([]transit.Arrival, 0, len(stops)*4)
	for i := range stops {
		stop := &stops[i]

		lines, err := c.ArrivalsForStop(ctx, stop.ID)
		if err != nil {
			c.recordFailure(err)
			c.logger.Warn().Err(err).Str("stop_id", stop.ID).Msg("arrival lookup failed, skipping stop")
			continue
		}
		c.recordSuccess()

		arrivals = append(arrivals, flatten(stop, lines)...)
	}

	return transit.Truncate(transit.Merge(arrivals), maxResults)
}

// flatten expands a stop's per-line estimates into arrival records carrying
// the stop's identity and distance from the query point.
func flatten(stop *transit.Stop, lines map[string]*transit.LineEstimates) []transit.Arrival {
	var arrivals []transit.Arrival
	for line, le := range lines {
		for i, minutes := range le.Minutes {
			stopDistance := float64(stop.Distance)
			a := transit.Arrival{
				Line:         line,
				Destination:  le.Destination,
				Minutes:      minutes,
				StopID:       stop.ID,
				StopName:     stop.Name,
				StopDistance: &stopDistance,
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

// setHeaders sets the session headers on a query request.
func setHeaders(req *http.Request, token string) {
	req.Header.Set("accessToken", token)
	req.Header.Set("Accept", "application/json")
}

// execute performs the request and decodes the shared response envelope.
func (c *Client) execute(req *http.Request) (*envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &env, nil
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(ProviderName)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(ProviderName, err)
	}
}

// Mobility Labs wire structures. Every endpoint shares the envelope; the
// data shape varies per call.

type envelope struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data"`
}

type loginData struct {
	AccessToken string `json:"accessToken"`
	Email       string `json:"email"`
}

type stopData struct {
	Stop     string     `json:"stop"`
	StopName string     `json:"stopName"`
	Distance float64    `json:"distance"`
	Lines    []lineData `json:"lines"`
}

type lineData struct {
	Label string `json:"label"`
}

type arrivesRequest struct {
	CultureInfo           string `json:"cultureInfo"`
	StopLabelRequired     string `json:"Text_StopRequired_YN"`
	EstimationsRequired   string `json:"Text_EstimationsRequired_YN"`
	IncidencesNotRequired string `json:"Text_IncidencesRequired_YN"`
}

type arrivesData struct {
	Arrive []arriveData `json:"Arrive"`
}

type arriveData struct {
	Line           string  `json:"line"`
	Stop           string  `json:"stop"`
	Destination    string  `json:"destination"`
	EstimateArrive int     `json:"estimateArrive"`
	DistanceBus    float64 `json:"DistanceBus"`
}

type detailData struct {
	Stops []detailStop `json:"stops"`
}

type detailStop struct {
	Stop string `json:"stop"`
	Name string `json:"name"`
}

// toStop converts a wire stop to the domain model, deduplicating line labels.
func toStop(s *stopData) transit.Stop {
	seen := make(map[string]struct{}, len(s.Lines))
	labels := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		if _, ok := seen[l.Label]; ok {
			continue
		}
		seen[l.Label] = struct{}{}
		labels = append(labels, l.Label)
	}

	return transit.Stop{
		ID:       s.Stop,
		Name:     s.StopName,
		Distance: int(s.Distance),
		Lines:    labels,
	}
}
