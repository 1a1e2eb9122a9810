package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"graphquiz/internal/app"
	"graphquiz/internal/domain"
	"graphquiz/internal/infra/sqlite"
)

type fixture struct {
	service *app.GameService
	clock   *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return &fixture{
		service: app.NewGameServiceWithClock(store, nil, clock.Now, newID),
		clock:   clock,
	}
}

func (f *fixture) createQuestion(t *testing.T, q domain.Question) domain.Question {
	t.Helper()
	created, err := f.service.CreateQuestion(context.Background(), q)
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	return created
}

func singleQuestion(section int) domain.Question {
	return domain.Question{
		GraphJSON:    json.RawMessage(`{"type":"line"}`),
		Text:         "Pick one",
		Options:      []string{"A", "B", "C"},
		CorrectIndex: 1,
		Tip:          "hint",
		Section:      section,
	}
}

func TestSubmitAnswerFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	q := f.createQuestion(t, singleQuestion(1))
	alice, err := f.service.Register(ctx, "  Alice  ")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if alice.Name != "Alice" {
		t.Fatalf("expected trimmed name, got %q", alice.Name)
	}

	outcome, err := f.service.SubmitAnswer(ctx, alice.ID, q.ID, domain.Submission{Index: 1})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !outcome.Correct || outcome.Score != 1 || outcome.Tip != "hint" {
		t.Fatalf("expected correct full-credit outcome, got %+v", outcome)
	}
	if outcome.CorrectIndex != 1 {
		t.Fatalf("expected canonical answer 1, got %d", outcome.CorrectIndex)
	}

	// second submission is rejected by the idempotency gate
	if _, err := f.service.SubmitAnswer(ctx, alice.ID, q.ID, domain.Submission{Index: 0}); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}

	totals, err := f.service.ParticipantTotals(ctx, alice.ID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.TotalAnswers != 1 || totals.CorrectAnswers != 1 {
		t.Fatalf("expected one full-credit answer, got %+v", totals)
	}
}

func TestSubmitAnswerRequiresExistingRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.createQuestion(t, singleQuestion(1))

	if _, err := f.service.SubmitAnswer(ctx, "ghost", q.ID, domain.Submission{Index: 0}); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}

	alice, _ := f.service.Register(ctx, "Alice")
	if _, err := f.service.SubmitAnswer(ctx, alice.ID, "missing", domain.Submission{Index: 0}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestOpenQuestionsFollowsActiveSection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	q1 := f.createQuestion(t, singleQuestion(1))
	q2 := f.createQuestion(t, singleQuestion(2))
	alice, _ := f.service.Register(ctx, "Alice")

	// no active section: everything is open
	open, err := f.service.OpenQuestions(ctx, alice.ID)
	if err != nil {
		t.Fatalf("open questions: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open questions, got %d", len(open))
	}

	section := 2
	if _, err := f.service.SetGameState(ctx, true, &section); err != nil {
		t.Fatalf("set game state: %v", err)
	}
	open, err = f.service.OpenQuestions(ctx, alice.ID)
	if err != nil {
		t.Fatalf("open questions: %v", err)
	}
	if len(open) != 1 || open[0].ID != q2.ID {
		t.Fatalf("expected only section 2 question, got %+v", open)
	}

	// answering removes the question from the open set
	if _, err := f.service.SubmitAnswer(ctx, alice.ID, q2.ID, domain.Submission{Index: 1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	open, err = f.service.OpenQuestions(ctx, alice.ID)
	if err != nil {
		t.Fatalf("open questions: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open questions, got %+v", open)
	}
	_ = q1
}

func TestLeaderboardAndReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	q1 := f.createQuestion(t, singleQuestion(1))
	q2 := f.createQuestion(t, singleQuestion(1))
	alice, _ := f.service.Register(ctx, "Alice")
	bob, _ := f.service.Register(ctx, "Bob")

	if _, err := f.service.SubmitAnswer(ctx, alice.ID, q1.ID, domain.Submission{Index: 1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.service.SubmitAnswer(ctx, bob.ID, q1.ID, domain.Submission{Index: 0}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.service.SubmitAnswer(ctx, bob.ID, q2.ID, domain.Submission{Index: 1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	entries, err := f.service.Leaderboard(ctx, nil)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// both have one correct answer; Alice finished earlier
	if entries[0].ID != alice.ID || entries[1].ID != bob.ID {
		t.Fatalf("expected Alice first on finish-time tie-break, got %+v", entries)
	}
	if entries[1].TotalAnswers != 2 || entries[1].CorrectAnswers != 1 {
		t.Fatalf("expected Bob with 2 answers worth 1.0, got %+v", entries[1])
	}

	n, err := f.service.ResetScores(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deleted records, got %d", n)
	}

	entries, err = f.service.Leaderboard(ctx, nil)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	for _, e := range entries {
		if e.TotalAnswers != 0 || e.CorrectAnswers != 0 || e.FinishTime != nil {
			t.Fatalf("expected zeroed entries after reset, got %+v", e)
		}
	}
}

func TestSubscribeLeaderboardReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	q := f.createQuestion(t, singleQuestion(1))
	alice, _ := f.service.Register(ctx, "Alice")

	ch, cancel, err := f.service.SubscribeLeaderboard(ctx, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-ch
	if len(initial) != 1 || initial[0].TotalAnswers != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", initial)
	}

	if _, err := f.service.SubmitAnswer(ctx, alice.ID, q.ID, domain.Submission{Index: 1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	update := <-ch
	if len(update) != 1 || update[0].CorrectAnswers != 1 {
		t.Fatalf("expected updated snapshot, got %+v", update)
	}
}

func TestDeleteQuestionDropsScores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	q := f.createQuestion(t, singleQuestion(1))
	alice, _ := f.service.Register(ctx, "Alice")
	if _, err := f.service.SubmitAnswer(ctx, alice.ID, q.ID, domain.Submission{Index: 1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := f.service.DeleteQuestion(ctx, q.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	totals, err := f.service.ParticipantTotals(ctx, alice.ID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.TotalAnswers != 0 {
		t.Fatalf("expected scores gone with question, got %+v", totals)
	}

	if err := f.service.DeleteQuestion(ctx, q.ID); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
}

func TestCreateQuestionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bad := singleQuestion(1)
	bad.Options = []string{"only"}
	if _, err := f.service.CreateQuestion(ctx, bad); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question, got %v", err)
	}

	bad = singleQuestion(1)
	bad.CorrectIndex = 5
	if _, err := f.service.CreateQuestion(ctx, bad); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected invalid question for out-of-range key, got %v", err)
	}

	if _, err := f.service.Register(ctx, "   "); !errors.Is(err, domain.ErrNameRequired) {
		t.Fatalf("expected name required, got %v", err)
	}
}
