package traits

import (
	"math"
	"testing"
)

func testCatalog(t *testing.T) Catalog {
	t.Helper()
	catalog, err := NewCatalog([]Question{
		{ID: "q-listening", Axis: AxisCommunication, Facet: "active_listening"},
		{ID: "q-conflict", Axis: AxisCommunication, Facet: "conflict_avoidance"},
		{ID: "q-chores", Axis: AxisDomestic, Facet: "chore_sharing"},
		{ID: "q-budget", Axis: AxisFinance, Facet: "joint_budgeting", Weight: 2},
		{ID: "q-saving", Axis: AxisFinance, Facet: "impulse_spending"},
		{ID: "q-custom", Axis: AxisPsyche, Facet: "self_reflection", ValueMap: []float64{-2, 0, 2}},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	return catalog
}

func TestScoreAnswersSkipsUnknownQuestions(t *testing.T) {
	catalog := testCatalog(t)
	delta := ScoreAnswers([]Answer{
		{QuestionID: "q-unknown", UIValue: 5},
		{QuestionID: "q-listening", UIValue: 5},
	}, catalog, DefaultConfig())

	if len(delta.Levels) != 1 {
		t.Fatalf("expected one axis, got %v", delta.Levels)
	}
	if _, ok := delta.Levels[AxisCommunication]; !ok {
		t.Fatal("expected communication axis present")
	}
}

func TestScoreAnswersEmptyBatch(t *testing.T) {
	delta := ScoreAnswers(nil, testCatalog(t), DefaultConfig())
	if len(delta.Levels) != 0 {
		t.Fatalf("expected empty delta, got %v", delta.Levels)
	}
}

func TestScoreAnswersClampsUIValueIntoScale(t *testing.T) {
	catalog := testCatalog(t)
	cfg := DefaultConfig()

	over := ScoreAnswers([]Answer{{QuestionID: "q-listening", UIValue: 99}}, catalog, cfg)
	top := ScoreAnswers([]Answer{{QuestionID: "q-listening", UIValue: 5}}, catalog, cfg)
	if over.Levels[AxisCommunication] != top.Levels[AxisCommunication] {
		t.Fatal("expected out-of-range value clamped to scale top")
	}

	under := ScoreAnswers([]Answer{{QuestionID: "q-listening", UIValue: -4}}, catalog, cfg)
	bottom := ScoreAnswers([]Answer{{QuestionID: "q-listening", UIValue: 1}}, catalog, cfg)
	if under.Levels[AxisCommunication] != bottom.Levels[AxisCommunication] {
		t.Fatal("expected out-of-range value clamped to scale bottom")
	}
}

func TestScoreAnswersTagsFacets(t *testing.T) {
	catalog := testCatalog(t)
	delta := ScoreAnswers([]Answer{
		{QuestionID: "q-listening", UIValue: 5}, // +3 → positive
		{QuestionID: "q-conflict", UIValue: 1},  // -3 → negative
		{QuestionID: "q-chores", UIValue: 4},    // +1 → below threshold
	}, catalog, DefaultConfig())

	if got := delta.Positives[AxisCommunication]; len(got) != 1 || got[0] != "active_listening" {
		t.Fatalf("unexpected positives %v", got)
	}
	if got := delta.Negatives[AxisCommunication]; len(got) != 1 || got[0] != "conflict_avoidance" {
		t.Fatalf("unexpected negatives %v", got)
	}
	if len(delta.Positives[AxisDomestic]) != 0 {
		t.Fatalf("mild answer must not tag a facet, got %v", delta.Positives[AxisDomestic])
	}
}

func TestScoreAnswersDeduplicatesFacets(t *testing.T) {
	catalog := testCatalog(t)
	delta := ScoreAnswers([]Answer{
		{QuestionID: "q-listening", UIValue: 5},
		{QuestionID: "q-listening", UIValue: 5},
	}, catalog, DefaultConfig())

	if got := delta.Positives[AxisCommunication]; len(got) != 1 {
		t.Fatalf("expected deduplicated facet set, got %v", got)
	}
}

func TestScoreAnswersCustomValueMap(t *testing.T) {
	catalog := testCatalog(t)
	delta := ScoreAnswers([]Answer{{QuestionID: "q-custom", UIValue: 3}}, catalog, DefaultConfig())

	// +2 on a ±2 map normalizes to +1, same as scale top.
	if delta.Levels[AxisPsyche] <= 0 {
		t.Fatalf("expected positive delta, got %f", delta.Levels[AxisPsyche])
	}
	if got := delta.Positives[AxisPsyche]; len(got) != 1 || got[0] != "self_reflection" {
		t.Fatalf("expected facet from custom map, got %v", got)
	}
}

func TestWeightDominance(t *testing.T) {
	catalog := testCatalog(t)
	cfg := DefaultConfig()
	// Lift the per-batch ceiling so the raw weighted steps are comparable.
	cfg.MaxStep = 1

	// weight-2 at +max vs weight-1 at -max on the finance axis.
	mixed := ScoreAnswers([]Answer{
		{QuestionID: "q-budget", UIValue: 5},
		{QuestionID: "q-saving", UIValue: 1},
	}, catalog, cfg)
	aligned := ScoreAnswers([]Answer{
		{QuestionID: "q-budget", UIValue: 5},
		{QuestionID: "q-saving", UIValue: 5},
	}, catalog, cfg)

	got := mixed.Levels[AxisFinance]
	if got <= 0 {
		t.Fatalf("expected heavier positive answer to dominate, got %f", got)
	}
	// Weighted mean of (+1·2, −1·1) over weight 3 is 1/3 of the aligned
	// batch's mean of 1.
	ratio := got / aligned.Levels[AxisFinance]
	if math.Abs(ratio-1.0/3.0) > 1e-9 {
		t.Fatalf("expected net delta ratio 1/3, got %f", ratio)
	}
}

func TestBatchSaturationApproachesCeiling(t *testing.T) {
	catalog, err := NewCatalog(buildAxisQuestions(AxisDomestic, 40))
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	cfg := DefaultConfig()

	short := ScoreAnswers(axisAnswers(1, 5), catalog, cfg)
	medium := ScoreAnswers(axisAnswers(8, 5), catalog, cfg)
	long := ScoreAnswers(axisAnswers(40, 5), catalog, cfg)

	if short.Levels[AxisDomestic] >= medium.Levels[AxisDomestic] {
		t.Fatalf("expected short batch to move less: %f vs %f", short.Levels[AxisDomestic], medium.Levels[AxisDomestic])
	}
	if long.Levels[AxisDomestic] > cfg.MaxStep {
		t.Fatalf("expected long batch capped at %f, got %f", cfg.MaxStep, long.Levels[AxisDomestic])
	}
	if long.Levels[AxisDomestic] < cfg.MaxStep*0.9 {
		t.Fatalf("expected long batch near the ceiling, got %f", long.Levels[AxisDomestic])
	}
}

func TestScoreNeverExceedsCeilingEitherDirection(t *testing.T) {
	catalog, err := NewCatalog(buildAxisQuestions(AxisSexuality, 50))
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	cfg := DefaultConfig()

	down := ScoreAnswers(axisAnswers(50, 1), catalog, cfg)
	if got := down.Levels[AxisSexuality]; got < -cfg.MaxStep {
		t.Fatalf("expected negative delta capped at -%f, got %f", cfg.MaxStep, got)
	}
}

func buildAxisQuestions(axis Axis, n int) []Question {
	questions := make([]Question, n)
	for i := range questions {
		questions[i] = Question{ID: axisQuestionID(i), Axis: axis}
	}
	return questions
}

func axisAnswers(n, uiValue int) []Answer {
	answers := make([]Answer, n)
	for i := range answers {
		answers[i] = Answer{QuestionID: axisQuestionID(i), UIValue: uiValue}
	}
	return answers
}

func axisQuestionID(i int) string {
	return "q-bulk-" + string(rune('a'+i/26)) + string(rune('a'+i%26))
}
