package domain

import "errors"

var (
	// ErrInvalidAnswer is returned for malformed or out-of-range submissions.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrAlreadyAnswered is returned when a participant re-submits a question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrQuestionNotFound indicates an unknown question ID.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrParticipantNotFound indicates an unregistered participant ID.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrInvalidQuestion indicates a question that violates the model invariants.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrNameRequired is returned when registration is attempted with a blank name.
	ErrNameRequired = errors.New("name is required")
)
