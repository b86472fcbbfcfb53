package traits

import (
	"errors"
	"math"
	"testing"

	apperrors "github.com/kindredlabs/kindred/internal/platform/errors"
)

func TestScoreIdenticalProfiles(t *testing.T) {
	profile := Profile{
		AxisCommunication: State{Level: 0.8},
		AxisFinance:       State{Level: 0.2},
	}
	compat := Score(profile, profile)
	if compat.Overall != 1 {
		t.Fatalf("expected perfect compatibility, got %f", compat.Overall)
	}
}

func TestScoreUsesBaselineForMissingAxes(t *testing.T) {
	a := Profile{AxisCommunication: State{Level: 0.9}}
	b := Profile{}

	compat := Score(a, b)
	if got := compat.ByAxis[AxisCommunication]; math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("expected closeness 0.6 against baseline, got %f", got)
	}
	if got := compat.ByAxis[AxisPsyche]; got != 1 {
		t.Fatalf("expected both-missing axis fully close, got %f", got)
	}
}

func TestScoreFallsWithDistance(t *testing.T) {
	near := Score(
		Profile{AxisDomestic: State{Level: 0.6}},
		Profile{AxisDomestic: State{Level: 0.5}},
	)
	far := Score(
		Profile{AxisDomestic: State{Level: 0.9}},
		Profile{AxisDomestic: State{Level: 0.1}},
	)
	if near.Overall <= far.Overall {
		t.Fatalf("expected closer profiles to score higher: %f vs %f", near.Overall, far.Overall)
	}
}

func TestDiagnoseSplitsStrengthsAndRisks(t *testing.T) {
	profile := Profile{
		AxisCommunication: State{Level: 0.85, Positives: []string{"active_listening"}},
		AxisFinance:       State{Level: 0.15, Negatives: []string{"impulse_spending"}},
		AxisDomestic:      State{Level: 0.5},
	}

	diag := Diagnose(profile)
	if len(diag.Strengths) != 1 || diag.Strengths[0].Axis != AxisCommunication {
		t.Fatalf("unexpected strengths %v", diag.Strengths)
	}
	if diag.Strengths[0].Facets[0] != "active_listening" {
		t.Fatalf("expected positive facets on strength, got %v", diag.Strengths[0].Facets)
	}
	if len(diag.Risks) != 1 || diag.Risks[0].Axis != AxisFinance {
		t.Fatalf("unexpected risks %v", diag.Risks)
	}
	if diag.Risks[0].Facets[0] != "impulse_spending" {
		t.Fatalf("expected negative facets on risk, got %v", diag.Risks[0].Facets)
	}
}

func TestNewCatalogValidation(t *testing.T) {
	if _, err := NewCatalog([]Question{{ID: " ", Axis: AxisPsyche}}); !errors.Is(err, apperrors.New(apperrors.CodeQuestionInvalid, "")) {
		t.Fatalf("expected QUESTION_INVALID for empty id, got %v", err)
	}
	if _, err := NewCatalog([]Question{
		{ID: "q1", Axis: AxisPsyche},
		{ID: "q1", Axis: AxisFinance},
	}); !errors.Is(err, apperrors.New(apperrors.CodeQuestionInvalid, "")) {
		t.Fatalf("expected QUESTION_INVALID for duplicate id, got %v", err)
	}
	if _, err := NewCatalog([]Question{{ID: "q1", Axis: Axis("astrology")}}); !errors.Is(err, apperrors.New(apperrors.CodeQuestionInvalid, "")) {
		t.Fatalf("expected QUESTION_INVALID for unknown axis, got %v", err)
	}
	if _, err := NewCatalog([]Question{{ID: "q1", Axis: AxisPsyche, Weight: -1}}); !errors.Is(err, apperrors.New(apperrors.CodeQuestionInvalid, "")) {
		t.Fatalf("expected QUESTION_INVALID for negative weight, got %v", err)
	}

	catalog, err := NewCatalog([]Question{{ID: "q1", Axis: AxisPsyche}})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if _, ok := catalog["q1"]; !ok {
		t.Fatal("expected question registered")
	}
}
