package traits

import (
	"math"
	"sort"
)

// Answer is one raw questionnaire answer. UIValue is the 1-based position
// the user picked.
type Answer struct {
	QuestionID string
	UIValue    int
}

// Delta is the computed, not-yet-applied adjustment derived from one answer
// batch. It is ephemeral and never persisted.
type Delta struct {
	Levels    map[Axis]float64
	Positives map[Axis][]string
	Negatives map[Axis][]string
}

// facetThreshold marks answers strong enough to tag a facet: at least 2/3
// of the scale in either direction.
const facetThreshold = 2.0 / 3.0

// ScoreAnswers converts an answer batch into a per-axis delta. Answers
// referencing unknown question ids are skipped silently; a sparse client
// payload degrades instead of failing the batch.
func ScoreAnswers(answers []Answer, catalog Catalog, cfg Config) Delta {
	type axisAccum struct {
		weighted  float64
		weightSum float64
	}
	accum := make(map[Axis]*axisAccum)
	positives := make(map[Axis]map[string]bool)
	negatives := make(map[Axis]map[string]bool)

	for _, answer := range answers {
		question, ok := catalog[answer.QuestionID]
		if !ok {
			continue
		}

		scale := question.scale()
		idx := answer.UIValue - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(scale) {
			idx = len(scale) - 1
		}
		normalized := scale[idx] / maxMagnitude(scale)

		weight := question.weight()
		acc := accum[question.Axis]
		if acc == nil {
			acc = &axisAccum{}
			accum[question.Axis] = acc
		}
		acc.weighted += weight * normalized
		acc.weightSum += weight

		if question.Facet != "" {
			if normalized >= facetThreshold {
				addFacet(positives, question.Axis, question.Facet)
			} else if normalized <= -facetThreshold {
				addFacet(negatives, question.Axis, question.Facet)
			}
		}
	}

	delta := Delta{
		Levels:    make(map[Axis]float64, len(accum)),
		Positives: sortedFacets(positives),
		Negatives: sortedFacets(negatives),
	}
	for axis, acc := range accum {
		if acc.weightSum == 0 {
			continue
		}
		mean := acc.weighted / acc.weightSum
		// More answers on an axis approach full batch influence; a short
		// batch moves the axis proportionally less.
		saturation := acc.weightSum / (acc.weightSum + cfg.SaturationWeight)
		step := mean * cfg.StepFactor * saturation
		if step > cfg.MaxStep {
			step = cfg.MaxStep
		}
		if step < -cfg.MaxStep {
			step = -cfg.MaxStep
		}
		delta.Levels[axis] = step
	}
	return delta
}

func maxMagnitude(scale []float64) float64 {
	max := 0.0
	for _, v := range scale {
		if m := math.Abs(v); m > max {
			max = m
		}
	}
	if max == 0 {
		return 1
	}
	return max
}

func addFacet(sets map[Axis]map[string]bool, axis Axis, facet string) {
	set := sets[axis]
	if set == nil {
		set = make(map[string]bool)
		sets[axis] = set
	}
	set[facet] = true
}

// sortedFacets flattens facet sets into deterministic sorted slices.
func sortedFacets(sets map[Axis]map[string]bool) map[Axis][]string {
	out := make(map[Axis][]string, len(sets))
	for axis, set := range sets {
		facets := make([]string, 0, len(set))
		for facet := range set {
			facets = append(facets, facet)
		}
		sort.Strings(facets)
		out[axis] = facets
	}
	return out
}
