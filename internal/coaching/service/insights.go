package service

import (
	"context"
	"fmt"

	"github.com/kindredlabs/kindred/internal/coaching/traits"
)

// CompatibilityView is the response payload for compatibility reads.
type CompatibilityView struct {
	Overall float64            `json:"overall"`
	ByAxis  map[string]float64 `json:"by_axis"`
}

// DiagnosticsView is the response payload for diagnostics reads.
type DiagnosticsView struct {
	Strengths []InsightView `json:"strengths"`
	Risks     []InsightView `json:"risks"`
}

// InsightView is one strength or risk signal.
type InsightView struct {
	Axis   string   `json:"axis"`
	Level  float64  `json:"level"`
	Facets []string `json:"facets,omitempty"`
}

// CompatibilityFor scores two users' trait profiles against each other.
// Missing axes are read at the baseline midpoint.
func (s *Service) CompatibilityFor(ctx context.Context, userA, userB string) (CompatibilityView, error) {
	profileA, err := s.loadProfile(ctx, userA)
	if err != nil {
		return CompatibilityView{}, err
	}
	profileB, err := s.loadProfile(ctx, userB)
	if err != nil {
		return CompatibilityView{}, err
	}

	score := traits.Score(profileA, profileB)
	byAxis := make(map[string]float64, len(score.ByAxis))
	for axis, value := range score.ByAxis {
		byAxis[string(axis)] = value
	}
	return CompatibilityView{Overall: score.Overall, ByAxis: byAxis}, nil
}

// DiagnosticsFor reports the strengths and risks visible in one user's
// trait profile.
func (s *Service) DiagnosticsFor(ctx context.Context, userID string) (DiagnosticsView, error) {
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return DiagnosticsView{}, err
	}

	diagnostics := traits.Diagnose(profile)
	return DiagnosticsView{
		Strengths: insightViews(diagnostics.Strengths),
		Risks:     insightViews(diagnostics.Risks),
	}, nil
}

func (s *Service) loadProfile(ctx context.Context, userID string) (traits.Profile, error) {
	axes, err := s.store.GetTraitAxes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load trait axes: %w", err)
	}
	profile := make(traits.Profile, len(axes))
	for _, axis := range axes {
		profile[traits.Axis(axis.Axis)] = traits.State{
			Level:     axis.Level,
			Positives: axis.Positives,
			Negatives: axis.Negatives,
		}
	}
	return profile, nil
}

func insightViews(insights []traits.Insight) []InsightView {
	views := make([]InsightView, 0, len(insights))
	for _, insight := range insights {
		views = append(views, InsightView{
			Axis:   string(insight.Axis),
			Level:  insight.Level,
			Facets: insight.Facets,
		})
	}
	return views
}
