package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/kindredlabs/kindred/internal/coaching/idempotency"
	"github.com/kindredlabs/kindred/internal/coaching/idempotency/ledger/memory"
	storagesqlite "github.com/kindredlabs/kindred/internal/coaching/storage/sqlite"
	"github.com/kindredlabs/kindred/internal/coaching/traits"
	"github.com/kindredlabs/kindred/internal/platform/requestctx"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storagesqlite.Open(filepath.Join(t.TempDir(), "coaching.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})

	catalog, err := traits.NewCatalog([]traits.Question{
		{ID: "q-comm-1", Axis: traits.AxisCommunication, Facet: "active_listening"},
		{ID: "q-comm-2", Axis: traits.AxisCommunication, Weight: 3},
		{ID: "q-fin-1", Axis: traits.AxisFinance, Facet: "impulse_spending"},
	})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	return New(store, memory.New(), catalog)
}

func freshKey(t *testing.T) string {
	t.Helper()
	return uuid.NewString()
}

func decodeData(t *testing.T, res idempotency.Result, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(res.Envelope, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Data == nil {
		t.Fatalf("expected data envelope, got %s", res.Envelope)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func decodeError(t *testing.T, res idempotency.Result) (string, map[string]string) {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(res.Envelope, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code == "" {
		t.Fatalf("expected error envelope, got %s", res.Envelope)
	}
	return envelope.Error.Code, envelope.Error.Details
}

func TestPairLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreatePair(ctx, freshKey(t), "user-a", "user-a", "user-b")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	if res.HTTPStatus != 200 {
		t.Fatalf("create pair status: %d (%s)", res.HTTPStatus, res.Envelope)
	}
	var created PairView
	decodeData(t, res, &created)
	if created.Status != "active" {
		t.Fatalf("expected active pair, got %q", created.Status)
	}

	res, err = svc.PausePair(ctx, freshKey(t), "user-b", created.ID)
	if err != nil {
		t.Fatalf("pause pair: %v", err)
	}
	var paused PairView
	decodeData(t, res, &paused)
	if paused.Status != "paused" {
		t.Fatalf("expected paused, got %q", paused.Status)
	}

	// Pausing again is a safe retry with a distinct noop event.
	res, err = svc.PausePair(ctx, freshKey(t), "user-a", created.ID)
	if err != nil {
		t.Fatalf("re-pause pair: %v", err)
	}
	var repaused PairView
	decodeData(t, res, &repaused)
	if len(repaused.Events) != 1 || repaused.Events[0] != "pair.pause_noop" {
		t.Fatalf("expected pause_noop event, got %v", repaused.Events)
	}

	res, err = svc.ResumePair(ctx, freshKey(t), "user-a", created.ID)
	if err != nil {
		t.Fatalf("resume pair: %v", err)
	}
	var resumed PairView
	decodeData(t, res, &resumed)
	if resumed.Status != "active" {
		t.Fatalf("expected active, got %q", resumed.Status)
	}
}

func TestCreatePairReplaysOnSameKey(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := freshKey(t)

	first, err := svc.CreatePair(ctx, key, "user-a", "user-a", "user-b")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	second, err := svc.CreatePair(ctx, key, "user-a", "user-a", "user-b")
	if err != nil {
		t.Fatalf("replay create pair: %v", err)
	}
	if !second.Replayed {
		t.Fatal("expected replay")
	}
	if string(second.Envelope) != string(first.Envelope) {
		t.Fatalf("replay envelope differs: %s vs %s", second.Envelope, first.Envelope)
	}
}

func TestCreatePairConflictForExistingMembers(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreatePair(ctx, freshKey(t), "user-a", "user-a", "user-b"); err != nil {
		t.Fatalf("create pair: %v", err)
	}

	res, err := svc.CreatePair(ctx, freshKey(t), "user-a", "user-a", "user-b")
	if err != nil {
		t.Fatalf("second create pair: %v", err)
	}
	if res.HTTPStatus != 409 {
		t.Fatalf("expected 409, got %d (%s)", res.HTTPStatus, res.Envelope)
	}
	code, _ := decodeError(t, res)
	if code != "PAIR_ALREADY_EXISTS" {
		t.Fatalf("expected PAIR_ALREADY_EXISTS, got %q", code)
	}
}

func TestPairActionByStrangerIsDenied(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreatePair(ctx, freshKey(t), "user-a", "user-a", "user-b")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	var created PairView
	decodeData(t, res, &created)

	res, err = svc.PausePair(ctx, freshKey(t), "user-z", created.ID)
	if err != nil {
		t.Fatalf("pause by stranger: %v", err)
	}
	if res.HTTPStatus != 403 {
		t.Fatalf("expected 403, got %d (%s)", res.HTTPStatus, res.Envelope)
	}
}

func TestMatchHandshake(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateMatch(ctx, freshKey(t), "user-a", "user-b")
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	var sent MatchView
	decodeData(t, res, &sent)
	if sent.Status != "sent" {
		t.Fatalf("expected sent, got %q", sent.Status)
	}

	// The initiator cannot answer their own proposal.
	res, err = svc.RespondMatch(ctx, freshKey(t), "user-a", sent.ID, "hello")
	if err != nil {
		t.Fatalf("respond as initiator: %v", err)
	}
	if res.HTTPStatus != 403 {
		t.Fatalf("expected 403, got %d (%s)", res.HTTPStatus, res.Envelope)
	}

	res, err = svc.RespondMatch(ctx, freshKey(t), "user-b", sent.ID, "sounds great")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	var responded MatchView
	decodeData(t, res, &responded)
	if responded.Status != "awaiting_initiator" {
		t.Fatalf("expected awaiting_initiator, got %q", responded.Status)
	}
	if responded.RecipientResponse != "sounds great" {
		t.Fatalf("expected response preserved, got %q", responded.RecipientResponse)
	}

	res, err = svc.AcceptMatch(ctx, freshKey(t), "user-a", sent.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	var accepted MatchView
	decodeData(t, res, &accepted)
	if accepted.Status != "mutual_ready" {
		t.Fatalf("expected mutual_ready, got %q", accepted.Status)
	}

	res, err = svc.ConfirmMatch(ctx, freshKey(t), "user-a", sent.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	var paired MatchView
	decodeData(t, res, &paired)
	if paired.Status != "paired" {
		t.Fatalf("expected paired, got %q", paired.Status)
	}

	// Rejecting a paired match is a conflict, not a noop.
	res, err = svc.RejectMatch(ctx, freshKey(t), "user-b", sent.ID)
	if err != nil {
		t.Fatalf("reject after pair: %v", err)
	}
	if res.HTTPStatus != 409 {
		t.Fatalf("expected 409, got %d (%s)", res.HTTPStatus, res.Envelope)
	}
	_, details := decodeError(t, res)
	if details["status"] != "paired" || details["action"] != "reject" {
		t.Fatalf("expected diagnostic metadata, got %v", details)
	}
}

func TestRespondRequiresPayload(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateMatch(ctx, freshKey(t), "user-a", "user-b")
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	var sent MatchView
	decodeData(t, res, &sent)

	res, err = svc.RespondMatch(ctx, freshKey(t), "user-b", sent.ID, "   ")
	if err != nil {
		t.Fatalf("respond empty: %v", err)
	}
	code, _ := decodeError(t, res)
	if code != "MATCH_RESPONSE_REQUIRED" {
		t.Fatalf("expected MATCH_RESPONSE_REQUIRED, got %q", code)
	}
}

func TestActivityFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	offered, err := svc.OfferActivity(ctx, "pair-1")
	if err != nil {
		t.Fatalf("offer activity: %v", err)
	}
	if offered.Status != "offered" {
		t.Fatalf("expected offered, got %q", offered.Status)
	}

	res, err := svc.AcceptActivity(ctx, freshKey(t), "user-a", offered.ID)
	if err != nil {
		t.Fatalf("accept activity: %v", err)
	}
	var accepted ActivityView
	decodeData(t, res, &accepted)
	if accepted.Status != "accepted" {
		t.Fatalf("expected accepted, got %q", accepted.Status)
	}

	res, err = svc.CheckinActivity(ctx, freshKey(t), "user-a", offered.ID, []CheckinAnswerInput{
		{QuestionID: "q-comm-1", Value: 5},
	})
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	var checked ActivityView
	decodeData(t, res, &checked)
	if checked.Status != "awaiting_checkin" {
		t.Fatalf("expected awaiting_checkin, got %q", checked.Status)
	}
	if checked.AnswerCount != 1 {
		t.Fatalf("expected 1 answer, got %d", checked.AnswerCount)
	}

	// A second check-in appends; it never rewrites the first.
	res, err = svc.CheckinActivity(ctx, freshKey(t), "user-b", offered.ID, []CheckinAnswerInput{
		{QuestionID: "q-comm-1", Value: 4},
	})
	if err != nil {
		t.Fatalf("second checkin: %v", err)
	}
	decodeData(t, res, &checked)
	if checked.AnswerCount != 2 {
		t.Fatalf("expected 2 answers, got %d", checked.AnswerCount)
	}

	res, err = svc.CompleteActivity(ctx, freshKey(t), "user-a", offered.ID, "completed_success", 0.9)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	var completed ActivityView
	decodeData(t, res, &completed)
	if completed.Status != "completed_success" || completed.OutcomeScore != 0.9 {
		t.Fatalf("unexpected completion: %+v", completed)
	}

	// Completed activities accept no further actions.
	res, err = svc.CheckinActivity(ctx, freshKey(t), "user-a", offered.ID, nil)
	if err != nil {
		t.Fatalf("checkin after completion: %v", err)
	}
	if res.HTTPStatus != 409 {
		t.Fatalf("expected 409, got %d (%s)", res.HTTPStatus, res.Envelope)
	}
}

func TestCompleteActivityRejectsNonTerminalOutcome(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	offered, err := svc.OfferActivity(ctx, "pair-1")
	if err != nil {
		t.Fatalf("offer activity: %v", err)
	}
	if _, err := svc.AcceptActivity(ctx, freshKey(t), "user-a", offered.ID); err != nil {
		t.Fatalf("accept activity: %v", err)
	}

	res, err := svc.CompleteActivity(ctx, freshKey(t), "user-a", offered.ID, "in_progress", 0)
	if err != nil {
		t.Fatalf("complete with bad outcome: %v", err)
	}
	code, _ := decodeError(t, res)
	if code != "ACTIVITY_INVALID_OUTCOME" {
		t.Fatalf("expected ACTIVITY_INVALID_OUTCOME, got %q", code)
	}
}

func TestSessionAnswerFeedsTraitProfile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.StartSession(ctx, freshKey(t), "user-a", "onboarding")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	var started SessionView
	decodeData(t, res, &started)
	if started.Status != "in_progress" {
		t.Fatalf("expected in_progress, got %q", started.Status)
	}

	// A maximal communication answer moves the axis up from baseline.
	res, err = svc.AnswerSession(ctx, freshKey(t), "user-a", "onboarding", "q-comm-1", 5)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	var answered SessionView
	decodeData(t, res, &answered)
	if answered.AnsweredCount != 1 {
		t.Fatalf("expected 1 answer, got %d", answered.AnsweredCount)
	}
	level, ok := answered.Levels["communication"]
	if !ok {
		t.Fatalf("expected communication level, got %v", answered.Levels)
	}
	if level <= 0.5 {
		t.Fatalf("expected level above baseline, got %v", level)
	}

	diag, err := svc.DiagnosticsFor(ctx, "user-a")
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	// One answer cannot push past the strength threshold.
	if len(diag.Strengths) != 0 {
		t.Fatalf("expected no strengths yet, got %+v", diag.Strengths)
	}

	res, err = svc.CompleteSession(ctx, freshKey(t), "user-a", "onboarding")
	if err != nil {
		t.Fatalf("complete session: %v", err)
	}
	var completed SessionView
	decodeData(t, res, &completed)
	if completed.Status != "completed" {
		t.Fatalf("expected completed, got %q", completed.Status)
	}

	// Answering a completed session is a conflict.
	res, err = svc.AnswerSession(ctx, freshKey(t), "user-a", "onboarding", "q-comm-2", 5)
	if err != nil {
		t.Fatalf("answer after completion: %v", err)
	}
	if res.HTTPStatus != 409 {
		t.Fatalf("expected 409, got %d (%s)", res.HTTPStatus, res.Envelope)
	}
}

func TestSessionOwnerIsEnforced(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.StartSession(ctx, freshKey(t), "user-a", "onboarding"); err != nil {
		t.Fatalf("start session: %v", err)
	}

	res, err := svc.AnswerSession(ctx, freshKey(t), "user-b", "onboarding", "q-comm-1", 3)
	if err != nil {
		t.Fatalf("answer as other user: %v", err)
	}
	// user-b has no session of their own, so the attempt is not-found rather
	// than leaking user-a's session.
	if res.HTTPStatus != 404 {
		t.Fatalf("expected 404, got %d (%s)", res.HTTPStatus, res.Envelope)
	}
}

func TestActorFallsBackToContext(t *testing.T) {
	svc := newTestService(t)
	ctx := requestctx.WithActorID(context.Background(), "user-a")

	res, err := svc.CreatePair(ctx, freshKey(t), "", "user-a", "user-b")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	if res.HTTPStatus != 200 {
		t.Fatalf("expected 200, got %d (%s)", res.HTTPStatus, res.Envelope)
	}
	var created PairView
	decodeData(t, res, &created)

	// The context identity drives role checks too.
	res, err = svc.PausePair(ctx, freshKey(t), "", created.ID)
	if err != nil {
		t.Fatalf("pause pair: %v", err)
	}
	var paused PairView
	decodeData(t, res, &paused)
	if paused.Status != "paused" {
		t.Fatalf("expected paused, got %q", paused.Status)
	}
}

func TestCompatibilityBetweenUsers(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, user := range []string{"user-a", "user-b"} {
		if _, err := svc.StartSession(ctx, freshKey(t), user, "onboarding"); err != nil {
			t.Fatalf("start session for %s: %v", user, err)
		}
	}
	// user-a answers high on communication, user-b low.
	if _, err := svc.AnswerSession(ctx, freshKey(t), "user-a", "onboarding", "q-comm-1", 5); err != nil {
		t.Fatalf("answer a: %v", err)
	}
	if _, err := svc.AnswerSession(ctx, freshKey(t), "user-b", "onboarding", "q-comm-1", 1); err != nil {
		t.Fatalf("answer b: %v", err)
	}

	compat, err := svc.CompatibilityFor(ctx, "user-a", "user-b")
	if err != nil {
		t.Fatalf("compatibility: %v", err)
	}
	if compat.Overall <= 0 || compat.Overall >= 1 {
		t.Fatalf("expected overall in (0,1), got %v", compat.Overall)
	}
	commScore, ok := compat.ByAxis["communication"]
	if !ok {
		t.Fatalf("expected communication score, got %v", compat.ByAxis)
	}
	if commScore >= 1 {
		t.Fatalf("diverging answers must reduce closeness, got %v", commScore)
	}

	// Identical profiles score closer than diverging ones.
	self, err := svc.CompatibilityFor(ctx, "user-a", "user-a")
	if err != nil {
		t.Fatalf("self compatibility: %v", err)
	}
	if self.Overall <= compat.Overall {
		t.Fatalf("self score %v must beat cross score %v", self.Overall, compat.Overall)
	}
}

func TestCatalogSaveLoadRoundTrip(t *testing.T) {
	store, err := storagesqlite.Open(filepath.Join(t.TempDir(), "coaching.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	ctx := context.Background()

	catalog, err := traits.NewCatalog([]traits.Question{
		{ID: "q-comm-1", Axis: traits.AxisCommunication, Facet: "active_listening"},
		{ID: "q-fin-1", Axis: traits.AxisFinance, Weight: 2, ValueMap: []float64{-2, 0, 2}},
	})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	if err := SaveCatalog(ctx, store, catalog); err != nil {
		t.Fatalf("save catalog: %v", err)
	}

	loaded, err := LoadCatalog(ctx, store)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(loaded))
	}
	question, ok := loaded["q-fin-1"]
	if !ok {
		t.Fatalf("expected q-fin-1 in catalog, got %v", loaded)
	}
	if question.Axis != traits.AxisFinance || question.Weight != 2 {
		t.Fatalf("unexpected question: %+v", question)
	}
	if len(question.ValueMap) != 3 || question.ValueMap[2] != 2 {
		t.Fatalf("expected value map survives round trip, got %+v", question.ValueMap)
	}
	if loaded["q-comm-1"].Facet != "active_listening" {
		t.Fatalf("expected facet survives round trip, got %+v", loaded["q-comm-1"])
	}
}

func TestIDGeneratorOverrideAndFailure(t *testing.T) {
	store, err := storagesqlite.Open(filepath.Join(t.TempDir(), "coaching.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	catalog, err := traits.NewCatalog(nil)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	ctx := context.Background()

	svc := New(store, memory.New(), catalog, WithIDGenerator(func() (string, error) {
		return "pair-fixed", nil
	}))
	res, err := svc.CreatePair(ctx, freshKey(t), "user-a", "user-a", "user-b")
	if err != nil {
		t.Fatalf("create pair: %v", err)
	}
	var created PairView
	decodeData(t, res, &created)
	if created.ID != "pair-fixed" {
		t.Fatalf("expected overridden id, got %q", created.ID)
	}

	failing := New(store, memory.New(), catalog, WithIDGenerator(func() (string, error) {
		return "", errors.New("entropy exhausted")
	}))
	res, err = failing.CreatePair(ctx, freshKey(t), "user-a", "user-c", "user-d")
	if err != nil {
		t.Fatalf("create pair with failing generator: %v", err)
	}
	if res.HTTPStatus != 500 {
		t.Fatalf("expected internal error status, got %d (%s)", res.HTTPStatus, res.Envelope)
	}
}
