// Package decay computes a single incident's spatial/temporal risk
// contribution and combines contributions under an aggregation policy.
// All functions are pure; the surface builder supplies distances and ages.
package decay

import "github.com/rotisserie/eris"

// Policy selects how per-incident contributions combine at each cell.
type Policy string

const (
	// Cumulative sums the contributions from every incident.
	Cumulative Policy = "CUMULATIVE"
	// Maximum keeps the largest single contribution. Ties keep the running
	// value, so aggregation order cannot change the result.
	Maximum Policy = "MAXIMUM"
)

// ParsePolicy validates a policy name from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case Cumulative:
		return Cumulative, nil
	case Maximum:
		return Maximum, nil
	default:
		return "", eris.Errorf("decay: unknown aggregation policy %q", s)
	}
}

// Spatial returns the linear distance decay bandSize - (distance + 1).
// The second return is false at or beyond the band edge, where the incident
// contributes nothing; such cells are excluded rather than zeroed so a
// maximum comparison is not biased by them.
func Spatial(distance, bandSize float64) (float64, bool) {
	if distance < 0 || distance >= bandSize {
		return 0, false
	}
	v := bandSize - (distance + 1)
	if v <= 0 {
		return 0, false
	}
	return v, true
}

// TemporalWeight returns the age multiplier 2/(ageDays+1). An incident from
// today carries full weight 2; the weight approaches 0 as age grows.
func TemporalWeight(ageDays float64) float64 {
	return 2 / (ageDays + 1)
}

// WeightFunc maps an incident age in days to a multiplier. The aggregation
// logic is agnostic to which decay formula is plugged in.
type WeightFunc func(ageDays float64) float64

// Unweighted ignores age, giving the pure-spatial surface variant.
func Unweighted(float64) float64 { return 1 }

// Combined evaluates Spatial x TemporalWeight. It is undefined (ok=false)
// outside the spatial band.
func Combined(distance, ageDays, bandSize float64, weight WeightFunc) (float64, bool) {
	if weight == nil {
		weight = TemporalWeight
	}
	s, ok := Spatial(distance, bandSize)
	if !ok {
		return 0, false
	}
	return s * weight(ageDays), true
}

// Aggregate folds one contribution into a running cell value per the
// policy. The ok flags track cell validity: a cell no incident has reached
// stays invalid and is excluded from the final surface.
func Aggregate(policy Policy, running float64, runningOK bool, contribution float64) (float64, bool) {
	if !runningOK {
		return contribution, true
	}
	switch policy {
	case Maximum:
		if contribution > running {
			return contribution, true
		}
		return running, true
	default:
		return running + contribution, true
	}
}
