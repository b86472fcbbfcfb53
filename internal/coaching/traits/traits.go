// Package traits converts questionnaire answers into bounded, damped updates
// to a user's multi-axis trait profile.
//
// Everything here is pure: scoring produces an ephemeral delta, applying a
// delta proposes the next profile without mutating the current one. Callers
// own persistence.
package traits

// Axis is one of the six fixed trait dimensions tracked per user.
type Axis string

const (
	AxisCommunication Axis = "communication"
	AxisDomestic      Axis = "domestic"
	AxisPersonalViews Axis = "personal_views"
	AxisFinance       Axis = "finance"
	AxisSexuality     Axis = "sexuality"
	AxisPsyche        Axis = "psyche"
)

// Axes returns all trait axes in their fixed canonical order.
func Axes() []Axis {
	return []Axis{
		AxisCommunication,
		AxisDomestic,
		AxisPersonalViews,
		AxisFinance,
		AxisSexuality,
		AxisPsyche,
	}
}

// IsAxis reports whether value names a known trait axis.
func IsAxis(value Axis) bool {
	switch value {
	case AxisCommunication, AxisDomestic, AxisPersonalViews, AxisFinance, AxisSexuality, AxisPsyche:
		return true
	default:
		return false
	}
}

// baselineLevel is the midpoint level assumed for an axis that has no
// recorded state yet.
const baselineLevel = 0.5

// State is one axis of a user's trait profile. Level always lies in [0,1];
// positives and negatives are append-only facet tag sets.
type State struct {
	Level     float64
	Positives []string
	Negatives []string
}

// Profile is a user's full trait profile keyed by axis.
type Profile map[Axis]State

// Config bounds how far a single answer batch can move a profile.
type Config struct {
	// StepFactor scales the weighted per-axis answer mean into a level
	// delta.
	StepFactor float64
	// MaxStep caps the per-axis level movement of one submission.
	MaxStep float64
	// DampingFloor keeps a minimum fraction of movement near the level
	// rails so progress never fully stalls at 0 or 1.
	DampingFloor float64
	// SaturationWeight controls how quickly additional answers on the same
	// axis approach full batch influence.
	SaturationWeight float64
}

// DefaultConfig returns the production scoring bounds.
func DefaultConfig() Config {
	return Config{
		StepFactor:       0.25,
		MaxStep:          0.08,
		DampingFloor:     0.1,
		SaturationWeight: 3,
	}
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
