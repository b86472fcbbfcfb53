package traits

import "sort"

// ApplyResult is the proposed next profile plus a report of what changed.
type ApplyResult struct {
	// Profile is the next profile snapshot with levels updated and facet
	// additions unioned in. The input profile is never mutated.
	Profile Profile
	// Levels holds the new level per axis touched by the delta.
	Levels map[Axis]float64
	// Clamped lists axes whose raw movement ran past a level rail and was
	// cut off at 0 or 1, in canonical axis order.
	Clamped []Axis
	// PositiveAdditions and NegativeAdditions are the facet tags newly
	// added per axis; tags already present are not repeated.
	PositiveAdditions map[Axis][]string
	NegativeAdditions map[Axis][]string
}

// ApplyDelta applies a scored delta to a profile snapshot. Level movement is
// damped near the rails — a fixed delta moves an axis sitting at 0.95 less
// than one sitting at 0.5 — and the result is always clamped into [0,1].
// Facet tags are unioned; nothing is ever removed.
func ApplyDelta(profile Profile, delta Delta, cfg Config) ApplyResult {
	next := make(Profile, len(profile)+len(delta.Levels))
	for axis, state := range profile {
		next[axis] = cloneState(state)
	}

	result := ApplyResult{
		Levels:            make(map[Axis]float64, len(delta.Levels)),
		PositiveAdditions: make(map[Axis][]string),
		NegativeAdditions: make(map[Axis][]string),
	}

	var clamped []Axis
	for _, axis := range Axes() {
		step, ok := delta.Levels[axis]
		if !ok {
			continue
		}
		state, exists := next[axis]
		if !exists {
			state = State{Level: baselineLevel}
		}

		raw := state.Level + step*damping(state.Level, cfg.DampingFloor)
		level := clamp01(raw)
		if level != raw {
			clamped = append(clamped, axis)
		}
		state.Level = level
		next[axis] = state
		result.Levels[axis] = level
	}
	result.Clamped = clamped

	for _, axis := range Axes() {
		if added := unionFacets(next, axis, delta.Positives[axis], true); len(added) > 0 {
			result.PositiveAdditions[axis] = added
		}
		if added := unionFacets(next, axis, delta.Negatives[axis], false); len(added) > 0 {
			result.NegativeAdditions[axis] = added
		}
	}

	result.Profile = next
	return result
}

// damping shrinks movement as the level approaches either rail. The factor
// is 1 at the midpoint and falls off quadratically toward the floor.
func damping(level, floor float64) float64 {
	centered := 2*level - 1
	factor := 1 - centered*centered
	return floor + (1-floor)*factor
}

func cloneState(state State) State {
	cloned := State{Level: state.Level}
	if len(state.Positives) > 0 {
		cloned.Positives = append([]string(nil), state.Positives...)
	}
	if len(state.Negatives) > 0 {
		cloned.Negatives = append([]string(nil), state.Negatives...)
	}
	return cloned
}

// unionFacets merges new facet tags into the axis state and returns the tags
// that were actually added, sorted.
func unionFacets(profile Profile, axis Axis, facets []string, positive bool) []string {
	if len(facets) == 0 {
		return nil
	}
	state, exists := profile[axis]
	if !exists {
		state = State{Level: baselineLevel}
	}

	existing := make(map[string]bool)
	current := state.Negatives
	if positive {
		current = state.Positives
	}
	for _, facet := range current {
		existing[facet] = true
	}

	var added []string
	for _, facet := range facets {
		if existing[facet] {
			continue
		}
		existing[facet] = true
		current = append(current, facet)
		added = append(added, facet)
	}
	sort.Strings(current)
	sort.Strings(added)

	if positive {
		state.Positives = current
	} else {
		state.Negatives = current
	}
	profile[axis] = state
	return added
}
