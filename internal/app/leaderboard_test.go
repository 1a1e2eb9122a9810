package app

import (
	"reflect"
	"testing"
	"time"

	"graphquiz/internal/domain"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func record(participant string, credit domain.Credit, section int, at time.Time) domain.ScoreRecord {
	return domain.ScoreRecord{
		ID:            participant + at.String(),
		ParticipantID: participant,
		QuestionID:    "q-" + at.String(),
		Credit:        credit,
		Section:       section,
		AnsweredAt:    at,
	}
}

func TestAggregateSumsFractionalCredit(t *testing.T) {
	participants := []domain.Participant{
		{ID: "a", Name: "Alice"},
		{ID: "b", Name: "Bob"},
	}
	records := []domain.ScoreRecord{
		record("a", 100, 1, base),
		record("a", 75, 1, base.Add(time.Minute)),
		record("a", 50, 1, base.Add(2*time.Minute)),
	}

	entries := Aggregate(records, participants, nil)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	alice := entries[0]
	if alice.ID != "a" || alice.Rank != 1 {
		t.Fatalf("expected Alice first, got %+v", alice)
	}
	if alice.TotalAnswers != 3 || alice.CorrectAnswers != 2.25 {
		t.Fatalf("expected 3 answers worth 2.25, got %+v", alice)
	}
	if alice.Score != 75 {
		t.Fatalf("expected mean score 75, got %v", alice.Score)
	}
	if alice.FinishTime == nil || !alice.FinishTime.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("expected latest answer as finish time, got %v", alice.FinishTime)
	}

	bob := entries[1]
	if bob.ID != "b" || bob.Rank != 2 {
		t.Fatalf("expected Bob second, got %+v", bob)
	}
	if bob.TotalAnswers != 0 || bob.CorrectAnswers != 0 || bob.Score != 0 || bob.FinishTime != nil {
		t.Fatalf("expected zeroed entry for Bob, got %+v", bob)
	}
}

func TestAggregateTieBreaksOnFinishTime(t *testing.T) {
	participants := []domain.Participant{
		{ID: "b", Name: "Bob"},
		{ID: "a", Name: "Alice"},
	}
	records := []domain.ScoreRecord{
		record("b", 100, 1, base.Add(time.Hour)),
		record("a", 100, 1, base),
	}

	entries := Aggregate(records, participants, nil)
	if entries[0].ID != "a" || entries[1].ID != "b" {
		t.Fatalf("expected earlier finisher first, got %+v", entries)
	}
	if entries[0].Rank != 1 || entries[1].Rank != 2 {
		t.Fatalf("expected ranks 1,2, got %+v", entries)
	}
}

func TestAggregateSectionFilter(t *testing.T) {
	participants := []domain.Participant{{ID: "a", Name: "Alice"}}
	records := []domain.ScoreRecord{
		record("a", 100, 1, base),
		record("a", 50, 2, base.Add(time.Minute)),
	}

	section := 1
	entries := Aggregate(records, participants, &section)
	if entries[0].TotalAnswers != 1 || entries[0].CorrectAnswers != 1 {
		t.Fatalf("expected only section 1 records, got %+v", entries[0])
	}
}

func TestAggregateOrderingProperty(t *testing.T) {
	participants := []domain.Participant{
		{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "c", Name: "C"}, {ID: "d", Name: "D"},
	}
	records := []domain.ScoreRecord{
		record("a", 100, 1, base.Add(time.Minute)),
		record("b", 100, 1, base),
		record("c", 30, 1, base),
	}

	entries := Aggregate(records, participants, nil)
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if prev.CorrectAnswers < cur.CorrectAnswers {
			t.Fatalf("entries out of order at %d: %+v before %+v", i, prev, cur)
		}
		if prev.CorrectAnswers == cur.CorrectAnswers && prev.FinishTime != nil && cur.FinishTime != nil &&
			prev.FinishTime.After(*cur.FinishTime) {
			t.Fatalf("finish-time tie-break violated at %d", i)
		}
	}
}

func TestAggregateIsPure(t *testing.T) {
	participants := []domain.Participant{{ID: "a", Name: "Alice"}, {ID: "b", Name: "Bob"}}
	records := []domain.ScoreRecord{
		record("a", 100, 1, base),
		record("b", 70, 1, base.Add(time.Second)),
	}

	first := Aggregate(records, participants, nil)
	second := Aggregate(records, participants, nil)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("aggregate not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	if entries := Aggregate(nil, nil, nil); len(entries) != 0 {
		t.Fatalf("expected empty ranking, got %+v", entries)
	}
}
