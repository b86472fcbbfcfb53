package traits

// Compatibility is a per-axis closeness score between two user profiles.
// Closeness is 1 when both users sit at the same level on an axis and falls
// linearly with level distance.
type Compatibility struct {
	Overall float64
	ByAxis  map[Axis]float64
}

// Score computes compatibility between two profiles. Axes missing from a
// profile are treated as sitting at the baseline midpoint.
func Score(a, b Profile) Compatibility {
	byAxis := make(map[Axis]float64, len(Axes()))
	total := 0.0
	for _, axis := range Axes() {
		closeness := 1 - abs(levelOf(a, axis)-levelOf(b, axis))
		byAxis[axis] = closeness
		total += closeness
	}
	return Compatibility{
		Overall: total / float64(len(Axes())),
		ByAxis:  byAxis,
	}
}

// Insight summarizes one axis for diagnostics.
type Insight struct {
	Axis   Axis
	Level  float64
	Facets []string
}

// Diagnostics splits a profile into strength and risk axes.
type Diagnostics struct {
	Strengths []Insight
	Risks     []Insight
}

const (
	strengthLevel = 0.7
	riskLevel     = 0.3
)

// Diagnose reports strong and at-risk axes in canonical axis order. A
// strength carries the axis's positive facets, a risk its negative facets.
func Diagnose(profile Profile) Diagnostics {
	var diag Diagnostics
	for _, axis := range Axes() {
		state, ok := profile[axis]
		if !ok {
			continue
		}
		switch {
		case state.Level >= strengthLevel:
			diag.Strengths = append(diag.Strengths, Insight{
				Axis:   axis,
				Level:  state.Level,
				Facets: append([]string(nil), state.Positives...),
			})
		case state.Level <= riskLevel:
			diag.Risks = append(diag.Risks, Insight{
				Axis:   axis,
				Level:  state.Level,
				Facets: append([]string(nil), state.Negatives...),
			})
		}
	}
	return diag
}

func levelOf(profile Profile, axis Axis) float64 {
	if state, ok := profile[axis]; ok {
		return state.Level
	}
	return baselineLevel
}

func abs(value float64) float64 {
	if value < 0 {
		return -value
	}
	return value
}
