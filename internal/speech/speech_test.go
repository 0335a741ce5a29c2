package speech_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cercabus/cercabus/internal/speech"
	"github.com/cercabus/cercabus/internal/transit"
)

func TestRenderEmpty(t *testing.T) {
	assert.Equal(t, speech.NoBuses, speech.Render(nil, 0))
	assert.Equal(t, speech.NoBuses, speech.Render([]transit.Arrival{}, 5))
}

func TestRenderSingleArrival(t *testing.T) {
	tests := []struct {
		name    string
		arrival transit.Arrival
		want    string
	}{
		{
			name:    "arriving now",
			arrival: transit.Arrival{Line: "27", Minutes: 0},
			want:    "Línea 27 llegando ahora.",
		},
		{
			name:    "one minute",
			arrival: transit.Arrival{Line: "27", Minutes: 1},
			want:    "Línea 27 en 1 minuto.",
		},
		{
			name:    "several minutes",
			arrival: transit.Arrival{Line: "27", Minutes: 7},
			want:    "Línea 27 en 7 minutos.",
		},
		{
			name:    "with stop name",
			arrival: transit.Arrival{Line: "27", Minutes: 3, StopName: "Cibeles-Casa de América"},
			want:    "Línea 27 en 3 minutos en Cibeles-Casa de América.",
		},
		{
			name:    "arriving now with stop name",
			arrival: transit.Arrival{Line: "5", Minutes: 0, StopName: "Recoletos"},
			want:    "Línea 5 llegando ahora en Recoletos.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, speech.Render([]transit.Arrival{tt.arrival}, 0))
		})
	}
}

func TestRenderTwoClauses(t *testing.T) {
	arrivals := []transit.Arrival{
		{Line: "27", Minutes: 3},
		{Line: "5", Minutes: 8},
	}

	assert.Equal(t, "Línea 27 en 3 minutos y Línea 5 en 8 minutos.", speech.Render(arrivals, 0))
}

func TestRenderThreeClauses(t *testing.T) {
	arrivals := []transit.Arrival{
		{Line: "27", Minutes: 0},
		{Line: "5", Minutes: 1},
		{Line: "14", Minutes: 9},
	}

	want := "Línea 27 llegando ahora, Línea 5 en 1 minuto, y Línea 14 en 9 minutos."
	assert.Equal(t, want, speech.Render(arrivals, 0))
}

func TestRenderMentionsEachLineOnce(t *testing.T) {
	arrivals := []transit.Arrival{
		{Line: "27", Minutes: 2},
		{Line: "27", Minutes: 9},
		{Line: "5", Minutes: 4},
	}

	assert.Equal(t, "Línea 27 en 2 minutos y Línea 5 en 4 minutos.", speech.Render(arrivals, 0))
}

func TestRenderMaxConsidered(t *testing.T) {
	arrivals := []transit.Arrival{
		{Line: "27", Minutes: 2},
		{Line: "5", Minutes: 4},
		{Line: "14", Minutes: 6},
	}

	// Only the first two records are looked at.
	assert.Equal(t, "Línea 27 en 2 minutos y Línea 5 en 4 minutos.", speech.Render(arrivals, 2))
	// Zero means no cap.
	assert.Equal(t, "Línea 27 en 2 minutos, Línea 5 en 4 minutos, y Línea 14 en 6 minutos.", speech.Render(arrivals, 0))
}

func TestRenderDuplicatesOnlyWithinWindow(t *testing.T) {
	// All considered records belong to one line, so a single clause remains.
	arrivals := []transit.Arrival{
		{Line: "27", Minutes: 2},
		{Line: "27", Minutes: 9},
		{Line: "5", Minutes: 12},
	}

	assert.Equal(t, "Línea 27 en 2 minutos.", speech.Render(arrivals, 2))
}
