// Package speech renders arrival data as Spanish voice-assistant sentences.
package speech

import (
	"fmt"
	"strings"

	"github.com/cercabus/cercabus/internal/transit"
)

// Fixed sentences returned when no arrival data is available.
const (
	// NoBuses is spoken when the arrival list is empty.
	NoBuses = "No hay autobuses llegando a paradas cercanas en este momento."

	// NoLocation is spoken when neither explicit coordinates nor a home
	// location are available.
	NoLocation = "No se pudo determinar la ubicación del hogar."
)

// Render turns a minutes-sorted arrival list into a single Spanish sentence
// suitable for voice synthesis.
//
// Each distinct line is mentioned at most once: the first record for a line
// produces a clause, later records for the same line are dropped even when
// they would otherwise fit. maxConsidered limits how many records are looked
// at before joining; zero or negative means all of them.
//
// Joining grammar: one clause ends with a period, two are joined with "y",
// three or more are comma-joined with ", y " before the last.
func Render(arrivals []transit.Arrival, maxConsidered int) string {
	if len(arrivals) == 0 {
		return NoBuses
	}

	if maxConsidered > 0 && len(arrivals) > maxConsidered {
		arrivals = arrivals[:maxConsidered]
	}

	mentioned := make(map[string]struct{})
	clauses := make([]string, 0, len(arrivals))

	for _, a := range arrivals {
		if _, ok := mentioned[a.Line]; ok {
			continue
		}
		mentioned[a.Line] = struct{}{}
		clauses = append(clauses, clause(a))
	}

	switch len(clauses) {
	case 0:
		return NoBuses
	case 1:
		return clauses[0] + "."
	case 2:
		return clauses[0] + " y " + clauses[1] + "."
	default:
		return strings.Join(clauses[:len(clauses)-1], ", ") + ", y " + clauses[len(clauses)-1] + "."
	}
}

// clause builds the per-arrival fragment, e.g. "Línea 27 en 3 minutos".
func clause(a transit.Arrival) string {
	var b strings.Builder

	switch {
	case a.Minutes == 0:
		fmt.Fprintf(&b, "Línea %s llegando ahora", a.Line)
	case a.Minutes == 1:
		fmt.Fprintf(&b, "Línea %s en 1 minuto", a.Line)
	default:
		fmt.Fprintf(&b, "Línea %s en %d minutos", a.Line, a.Minutes)
	}

	if a.StopName != "" {
		fmt.Fprintf(&b, " en %s", a.StopName)
	}

	return b.String()
}
