package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Credit is a fixed-point correctness value on a 0-100 hundredths scale.
// 100 is full credit, 0 is none; multi-select questions can earn anything
// between. The integer form is also the storage representation.
type Credit int

// Fraction converts the credit to its [0,1] representation.
func (c Credit) Fraction() float64 {
	return float64(c) / 100
}

// Question models a graph-illustrated multiple-choice question.
// GraphJSON is an opaque payload rendered by the frontend; the backend only
// validates that it parses as JSON.
type Question struct {
	ID           string
	GraphJSON    json.RawMessage
	Text         string
	Options      []string
	Multi        bool
	CorrectIndex int   // single-answer mode key
	CorrectSet   []int // multi-answer mode key
	Tip          string
	Section      int
	CreatedAt    time.Time
}

// Validate checks the question invariants: at least two options and every
// answer-key index within [0, len(options)).
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: question text is required", ErrInvalidQuestion)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: options must have at least 2 items", ErrInvalidQuestion)
	}
	if len(q.GraphJSON) > 0 && !json.Valid(q.GraphJSON) {
		return fmt.Errorf("%w: graph payload is not valid JSON", ErrInvalidQuestion)
	}
	if q.Multi {
		if len(q.CorrectSet) == 0 {
			return fmt.Errorf("%w: multi-answer key is empty", ErrInvalidQuestion)
		}
		for _, idx := range q.CorrectSet {
			if idx < 0 || idx >= len(q.Options) {
				return fmt.Errorf("%w: correct answer index %d out of range", ErrInvalidQuestion, idx)
			}
		}
		return nil
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("%w: correct answer index %d out of range", ErrInvalidQuestion, q.CorrectIndex)
	}
	return nil
}

// Participant is a registered player.
type Participant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ScoreRecord is the persisted outcome of one participant answering one
// question. Section is denormalized from the question at write time so
// per-round leaderboards survive later question edits.
type ScoreRecord struct {
	ID            string
	ParticipantID string
	QuestionID    string
	Credit        Credit
	Section       int
	AnsweredAt    time.Time
}

// GameState is the singleton switch controlling which section is playable.
// A nil ActiveSection means no section is open.
type GameState struct {
	Active        bool
	ActiveSection *int
	UpdatedAt     time.Time
}

// Submission is a participant's answer to a question: either a single option
// index or, for multi-select questions, a set of option indices. IsSet records
// which form the client sent; a bare index aimed at a multi-select question is
// treated as a one-element set.
type Submission struct {
	Index int
	Set   []int
	IsSet bool
}
