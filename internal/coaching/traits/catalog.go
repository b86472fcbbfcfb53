package traits

import (
	"strings"

	apperrors "github.com/kindredlabs/kindred/internal/platform/errors"
)

// defaultScale maps 1-based UI answer positions onto the symmetric signed
// scale used when a question carries no model-specific map.
var defaultScale = []float64{-3, -1, 0, 1, 3}

// Question describes one catalog entry: which axis an answer feeds, the
// facet tag it can attach, and how UI values map to signed scores.
type Question struct {
	ID    string
	Axis  Axis
	Facet string
	// Weight scales this question's contribution to its axis; zero means 1.
	Weight float64
	// ValueMap overrides the default symmetric scale for model-specific
	// questions. Values are 1-based by UI position.
	ValueMap []float64
}

// scale returns the question's answer-to-value map.
func (q Question) scale() []float64 {
	if len(q.ValueMap) > 0 {
		return q.ValueMap
	}
	return defaultScale
}

// weight returns the question's effective weight.
func (q Question) weight() float64 {
	if q.Weight > 0 {
		return q.Weight
	}
	return 1
}

// Catalog is the question lookup table supplied to the scoring engine.
type Catalog map[string]Question

// NewCatalog validates questions and builds the lookup table.
func NewCatalog(questions []Question) (Catalog, error) {
	catalog := make(Catalog, len(questions))
	for _, q := range questions {
		id := strings.TrimSpace(q.ID)
		if id == "" {
			return nil, apperrors.New(apperrors.CodeQuestionInvalid, "question id is required")
		}
		if _, exists := catalog[id]; exists {
			return nil, apperrors.WithMetadata(apperrors.CodeQuestionInvalid, "question id is duplicated", map[string]string{
				"question_id": id,
			})
		}
		if !IsAxis(q.Axis) {
			return nil, apperrors.WithMetadata(apperrors.CodeQuestionInvalid, "question axis is unknown", map[string]string{
				"question_id": id,
				"axis":        string(q.Axis),
			})
		}
		if q.Weight < 0 {
			return nil, apperrors.WithMetadata(apperrors.CodeQuestionInvalid, "question weight must not be negative", map[string]string{
				"question_id": id,
			})
		}
		q.ID = id
		catalog[id] = q
	}
	return catalog, nil
}
