package emt_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cercabus/cercabus/internal/transit"
	"github.com/cercabus/cercabus/internal/transit/emt"
)

const loginOK = `{
	"code": "01",
	"description": "Token OK",
	"data": [{"accessToken": "test-token-123", "email": "rider@example.com"}]
}`

const stopsAroundOK = `{
	"code": "00",
	"description": "OK",
	"data": [
		{
			"stop": "72",
			"stopName": "Cibeles-Casa de América",
			"distance": 120.7,
			"lines": [{"label": "27"}, {"label": "27"}, {"label": "5"}]
		},
		{
			"stop": "73",
			"stopName": "Recoletos",
			"distance": 280.2,
			"lines": [{"label": "14"}]
		}
	]
}`

const arrivesStop72 = `{
	"code": "00",
	"description": "OK",
	"data": [{
		"Arrive": [
			{"line": "27", "stop": "72", "destination": "Plaza Castilla", "estimateArrive": 180, "DistanceBus": 350.5},
			{"line": "27", "stop": "72", "destination": "Plaza Castilla", "estimateArrive": 400, "DistanceBus": 900},
			{"line": "5", "stop": "72", "destination": "Sol", "estimateArrive": 59, "DistanceBus": 100}
		]
	}]
}`

const arrivesStop73 = `{
	"code": "00",
	"description": "OK",
	"data": [{
		"Arrive": [
			{"line": "14", "stop": "73", "destination": "Conde de Casal", "estimateArrive": 240, "DistanceBus": 500}
		]
	}]
}`

const detailStop72 = `{
	"code": "00",
	"description": "OK",
	"data": [{"stops": [{"stop": "72", "name": "Cibeles-Casa de América"}]}]
}`

func newTestClient(t *testing.T, handler http.Handler) *emt.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return emt.NewClient(emt.ClientConfig{
		Email:      "rider@example.com",
		Password:   "secret",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
}

func loginHandler(mux *http.ServeMux) {
	mux.HandleFunc("/mobilitylabs/user/login/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("email") == "" || r.Header.Get("password") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, loginOK)
	})
}

func TestAuthenticateSuccess(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	client := newTestClient(t, mux)

	require.False(t, client.Authenticated())
	err := client.Authenticate(context.Background())
	require.NoError(t, err)
	assert.True(t, client.Authenticated())
}

func TestAuthenticateRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mobilitylabs/user/login/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"code": "92", "description": "Error: Invalid user or password", "data": []}`)
	})
	client := newTestClient(t, mux)

	err := client.Authenticate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, emt.ErrAuthFailed)
	assert.False(t, client.Authenticated())
}

func TestAuthenticateMalformedPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mobilitylabs/user/login/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"code": "01", "description": "Token OK", "data": []}`)
	})
	client := newTestClient(t, mux)

	err := client.Authenticate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, emt.ErrAuthFailed)
	assert.False(t, client.Authenticated())
}

func TestQueriesRequireAuthentication(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())
	ctx := context.Background()

	_, err := client.StopsNear(ctx, -3.7038, 40.4168, 300)
	assert.ErrorIs(t, err, emt.ErrNotAuthenticated)

	_, err = client.ArrivalsForStop(ctx, "72")
	assert.ErrorIs(t, err, emt.ErrNotAuthenticated)

	_, err = client.StopDetail(ctx, "72")
	assert.ErrorIs(t, err, emt.ErrNotAuthenticated)
}

func TestStopsNear(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/transport/busemtmad/stops/arroundxy/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("accessToken") != "test-token-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, stopsAroundOK)
	})
	client := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, client.Authenticate(ctx))

	stops, err := client.StopsNear(ctx, -3.7038, 40.4168, 300)
	require.NoError(t, err)
	require.Len(t, stops, 2)

	assert.Equal(t, "72", stops[0].ID)
	assert.Equal(t, "Cibeles-Casa de América", stops[0].Name)
	assert.Equal(t, 120, stops[0].Distance)
	// Duplicate line labels collapse.
	assert.Equal(t, []string{"27", "5"}, stops[0].Lines)

	assert.Equal(t, "73", stops[1].ID)
	assert.Equal(t, []string{"14"}, stops[1].Lines)
}

func TestArrivalsForStop(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/transport/busemtmad/stops/72/arrives/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, arrivesStop72)
	})
	client := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, client.Authenticate(ctx))

	lines, err := client.ArrivalsForStop(ctx, "72")
	require.NoError(t, err)
	require.Len(t, lines, 2)

	// Repeated entries accumulate; seconds truncate to whole minutes.
	line27 := lines["27"]
	require.NotNil(t, line27)
	assert.Equal(t, "Plaza Castilla", line27.Destination)
	assert.Equal(t, []int{3, 6}, line27.Minutes)
	assert.Equal(t, []float64{350.5, 900}, line27.BusDistances)

	line5 := lines["5"]
	require.NotNil(t, line5)
	assert.Equal(t, []int{0}, line5.Minutes)
}

func TestArrivalsForStopEmpty(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/transport/busemtmad/stops/99/arrives/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"code": "00", "description": "OK", "data": []}`)
	})
	client := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, client.Authenticate(ctx))

	lines, err := client.ArrivalsForStop(ctx, "99")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestStopDetail(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/transport/busemtmad/stops/72/detail/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, detailStop72)
	})
	client := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, client.Authenticate(ctx))

	stop, err := client.StopDetail(ctx, "72")
	require.NoError(t, err)
	assert.Equal(t, "72", stop.ID)
	assert.Equal(t, "Cibeles-Casa de América", stop.Name)
}

func TestStopDetailNotFound(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/transport/busemtmad/stops/999/detail/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"code": "00", "description": "OK", "data": []}`)
	})
	client := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, client.Authenticate(ctx))

	_, err := client.StopDetail(ctx, "999")
	require.Error(t, err)
}

func TestNearbyArrivals(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/transport/busemtmad/stops/arroundxy/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, stopsAroundOK)
	})
	mux.HandleFunc("/transport/busemtmad/stops/72/arrives/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, arrivesStop72)
	})
	mux.HandleFunc("/transport/busemtmad/stops/73/arrives/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, arrivesStop73)
	})
	client := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, client.Authenticate(ctx))

	arrivals := client.NearbyArrivals(ctx, -3.7038, 40.4168, 300, 3)
	require.Len(t, arrivals, 3)

	// Sorted by minutes across both stops, truncated to maxResults.
	assert.Equal(t, "5", arrivals[0].Line)
	assert.Equal(t, 0, arrivals[0].Minutes)
	assert.Equal(t, "27", arrivals[1].Line)
	assert.Equal(t, 3, arrivals[1].Minutes)
	assert.Equal(t, "14", arrivals[2].Line)
	assert.Equal(t, 4, arrivals[2].Minutes)

	require.NotNil(t, arrivals[0].StopDistance)
	assert.InDelta(t, 120, *arrivals[0].StopDistance, 1)
}

func TestNearbyArrivalsSkipsFailingStop(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/transport/busemtmad/stops/arroundxy/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, stopsAroundOK)
	})
	mux.HandleFunc("/transport/busemtmad/stops/72/arrives/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, arrivesStop72)
	})
	mux.HandleFunc("/transport/busemtmad/stops/73/arrives/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"code": "90", "description": "Error managed", "data": []}`)
	})
	client := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, client.Authenticate(ctx))

	arrivals := client.NearbyArrivals(ctx, -3.7038, 40.4168, 300, 10)
	require.Len(t, arrivals, 3)
	for _, a := range arrivals {
		assert.Equal(t, "72", a.StopID)
	}
}

func TestNearbyArrivalsUnauthenticated(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())

	arrivals := client.NearbyArrivals(context.Background(), -3.7038, 40.4168, 300, 5)
	assert.NotNil(t, arrivals)
	assert.Empty(t, arrivals)
}

func TestConcurrentSummariesShareOneSession(t *testing.T) {
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/mobilitylabs/user/login/", func(w http.ResponseWriter, _ *http.Request) {
		logins.Add(1)
		fmt.Fprint(w, loginOK)
	})
	mux.HandleFunc("/transport/busemtmad/stops/arroundxy/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, stopsAroundOK)
	})
	mux.HandleFunc("/transport/busemtmad/stops/72/arrives/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, arrivesStop72)
	})
	mux.HandleFunc("/transport/busemtmad/stops/73/arrives/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, arrivesStop73)
	})
	client := newTestClient(t, mux)

	svc := transit.NewService(transit.ServiceConfig{
		Provider: client,
		Logger:   zerolog.Nop(),
	})

	// One client instance serves the API handlers and the poll workers at
	// the same time. Hammer it from several goroutines starting from a
	// cold session: every summary must see arrivals, and the lazy login
	// must happen exactly once.
	const workers = 4
	var wg sync.WaitGroup
	summaries := make([]*transit.Summary, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summaries[i] = svc.NearbySummary(context.Background(), -3.7038, 40.4168, 300, 5)
		}(i)
	}
	wg.Wait()

	for _, summary := range summaries {
		require.NotNil(t, summary)
		assert.Len(t, summary.Arrivals, 4)
	}
	assert.Equal(t, int32(1), logins.Load())
}

func TestNearbyArrivalsDiscoveryFailure(t *testing.T) {
	mux := http.NewServeMux()
	loginHandler(mux)
	mux.HandleFunc("/transport/busemtmad/stops/arroundxy/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client := newTestClient(t, mux)

	ctx := context.Background()
	require.NoError(t, client.Authenticate(ctx))

	arrivals := client.NearbyArrivals(ctx, -3.7038, 40.4168, 300, 5)
	assert.NotNil(t, arrivals)
	assert.Empty(t, arrivals)
}
