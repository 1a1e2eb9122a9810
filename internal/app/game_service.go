package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"graphquiz/internal/domain"
)

// Store is the persistence boundary for the quiz. InsertScore must be atomic
// per (participant, question): a second insert for the same pair returns
// domain.ErrAlreadyAnswered instead of a duplicate row.
type Store interface {
	CreateParticipant(ctx context.Context, p domain.Participant) error
	Participant(ctx context.Context, id string) (domain.Participant, error)
	Participants(ctx context.Context) ([]domain.Participant, error)

	CreateQuestion(ctx context.Context, q domain.Question) error
	UpdateQuestion(ctx context.Context, q domain.Question) error
	DeleteQuestion(ctx context.Context, id string) error
	Question(ctx context.Context, id string) (domain.Question, error)
	Questions(ctx context.Context, section *int) ([]domain.Question, error)

	InsertScore(ctx context.Context, rec domain.ScoreRecord) error
	Scores(ctx context.Context, section *int) ([]domain.ScoreRecord, error)
	ParticipantScores(ctx context.Context, participantID string) ([]domain.ScoreRecord, error)
	ResetScores(ctx context.Context) (int64, error)

	GameState(ctx context.Context) (domain.GameState, error)
	SetGameState(ctx context.Context, active bool, section *int) error
}

// LeaderboardCache is an optional snapshot cache in front of Aggregate.
// Fetch either returns a cached ranking or invokes compute and caches the
// result; Invalidate drops every cached ranking after a score change.
type LeaderboardCache interface {
	Fetch(ctx context.Context, section *int, compute func(ctx context.Context) ([]RankedEntry, error)) ([]RankedEntry, error)
	Invalidate(ctx context.Context) error
}

// AnswerOutcome is what a participant sees after submitting an answer.
type AnswerOutcome struct {
	Correct      bool
	Score        float64
	CorrectIndex int
	CorrectSet   []int
	Multi        bool
	Tip          string
}

// ParticipantTotals summarizes one participant's progress across all sections.
type ParticipantTotals struct {
	TotalAnswers   int
	CorrectAnswers float64
}

// GameService contains the quiz use cases. All state lives in the Store;
// the service itself only keeps leaderboard subscribers.
type GameService struct {
	store Store
	cache LeaderboardCache
	clock func() time.Time
	newID func() string

	mu          sync.Mutex
	subscribers map[chan []RankedEntry]*int
}

func NewGameService(store Store, cache LeaderboardCache) *GameService {
	return &GameService{
		store:       store,
		cache:       cache,
		clock:       time.Now,
		newID:       uuid.NewString,
		subscribers: make(map[chan []RankedEntry]*int),
	}
}

// NewGameServiceWithClock is test-only for deterministic timestamps and IDs.
func NewGameServiceWithClock(store Store, cache LeaderboardCache, now func() time.Time, newID func() string) *GameService {
	s := NewGameService(store, cache)
	s.clock = now
	s.newID = newID
	return s
}

// Register creates a participant with a fresh ID.
func (s *GameService) Register(ctx context.Context, name string) (domain.Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Participant{}, domain.ErrNameRequired
	}
	p := domain.Participant{
		ID:        s.newID(),
		Name:      name,
		CreatedAt: s.clock(),
	}
	if err := s.store.CreateParticipant(ctx, p); err != nil {
		return domain.Participant{}, fmt.Errorf("create participant: %w", err)
	}
	return p, nil
}

func (s *GameService) Participant(ctx context.Context, id string) (domain.Participant, error) {
	return s.store.Participant(ctx, id)
}

// OpenQuestions returns the questions the participant can still answer:
// active section only, minus everything already answered. The answer key is
// the caller's responsibility to strip before serving.
func (s *GameService) OpenQuestions(ctx context.Context, participantID string) ([]domain.Question, error) {
	if _, err := s.store.Participant(ctx, participantID); err != nil {
		return nil, err
	}
	state, err := s.store.GameState(ctx)
	if err != nil {
		return nil, err
	}
	questions, err := s.store.Questions(ctx, state.ActiveSection)
	if err != nil {
		return nil, err
	}
	answered, err := s.store.ParticipantScores(ctx, participantID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(answered))
	for _, rec := range answered {
		done[rec.QuestionID] = true
	}
	open := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if !done[q.ID] {
			open = append(open, q)
		}
	}
	return open, nil
}

// SubmitAnswer grades a submission and persists the outcome exactly once per
// (participant, question) pair. The pre-check catches the common duplicate;
// the store's conditional insert closes the race between concurrent submits.
func (s *GameService) SubmitAnswer(ctx context.Context, participantID, questionID string, submission domain.Submission) (AnswerOutcome, error) {
	if _, err := s.store.Participant(ctx, participantID); err != nil {
		return AnswerOutcome{}, err
	}

	answered, err := s.store.ParticipantScores(ctx, participantID)
	if err != nil {
		return AnswerOutcome{}, err
	}
	for _, rec := range answered {
		if rec.QuestionID == questionID {
			return AnswerOutcome{}, domain.ErrAlreadyAnswered
		}
	}

	question, err := s.store.Question(ctx, questionID)
	if err != nil {
		return AnswerOutcome{}, err
	}

	result, err := Score(question, submission)
	if err != nil {
		return AnswerOutcome{}, err
	}

	rec := domain.ScoreRecord{
		ID:            s.newID(),
		ParticipantID: participantID,
		QuestionID:    questionID,
		Credit:        result.Credit,
		Section:       question.Section,
		AnsweredAt:    s.clock(),
	}
	if err := s.store.InsertScore(ctx, rec); err != nil {
		return AnswerOutcome{}, err
	}

	s.leaderboardChanged(ctx)

	return AnswerOutcome{
		Correct:      result.Correct,
		Score:        result.Fraction,
		CorrectIndex: result.CorrectIndex,
		CorrectSet:   result.CorrectSet,
		Multi:        question.Multi,
		Tip:          question.Tip,
	}, nil
}

// Leaderboard ranks all participants, optionally restricted to one section.
func (s *GameService) Leaderboard(ctx context.Context, section *int) ([]RankedEntry, error) {
	if s.cache == nil {
		return s.computeLeaderboard(ctx, section)
	}
	return s.cache.Fetch(ctx, section, func(ctx context.Context) ([]RankedEntry, error) {
		return s.computeLeaderboard(ctx, section)
	})
}

func (s *GameService) computeLeaderboard(ctx context.Context, section *int) ([]RankedEntry, error) {
	records, err := s.store.Scores(ctx, section)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.Participants(ctx)
	if err != nil {
		return nil, err
	}
	return Aggregate(records, participants, section), nil
}

// ParticipantTotals sums one participant's answers and fractional credit
// across all sections.
func (s *GameService) ParticipantTotals(ctx context.Context, participantID string) (ParticipantTotals, error) {
	records, err := s.store.ParticipantScores(ctx, participantID)
	if err != nil {
		return ParticipantTotals{}, err
	}
	totals := ParticipantTotals{TotalAnswers: len(records)}
	sum := 0
	for _, rec := range records {
		sum += int(rec.Credit)
	}
	totals.CorrectAnswers = float64(sum) / 100
	return totals, nil
}

func (s *GameService) GameState(ctx context.Context) (domain.GameState, error) {
	return s.store.GameState(ctx)
}

// SetGameState toggles the active flag and the open section.
func (s *GameService) SetGameState(ctx context.Context, active bool, section *int) (domain.GameState, error) {
	if err := s.store.SetGameState(ctx, active, section); err != nil {
		return domain.GameState{}, err
	}
	return s.store.GameState(ctx)
}

// CreateQuestion validates and stores a new question.
func (s *GameService) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if q.Section <= 0 {
		q.Section = 1
	}
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	q.ID = s.newID()
	q.CreatedAt = s.clock()
	if err := s.store.CreateQuestion(ctx, q); err != nil {
		return domain.Question{}, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// UpdateQuestion validates and replaces an existing question.
func (s *GameService) UpdateQuestion(ctx context.Context, q domain.Question) error {
	if q.Section <= 0 {
		q.Section = 1
	}
	if err := q.Validate(); err != nil {
		return err
	}
	return s.store.UpdateQuestion(ctx, q)
}

// DeleteQuestion removes a question and its dependent scores.
func (s *GameService) DeleteQuestion(ctx context.Context, id string) error {
	if err := s.store.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	s.leaderboardChanged(ctx)
	return nil
}

// ListQuestions returns every question, newest first, answer key included.
func (s *GameService) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	questions, err := s.store.Questions(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(questions)-1; i < j; i, j = i+1, j-1 {
		questions[i], questions[j] = questions[j], questions[i]
	}
	return questions, nil
}

func (s *GameService) ListParticipants(ctx context.Context) ([]domain.Participant, error) {
	return s.store.Participants(ctx)
}

// ResetScores wipes every score record and reports how many were deleted.
func (s *GameService) ResetScores(ctx context.Context) (int64, error) {
	n, err := s.store.ResetScores(ctx)
	if err != nil {
		return 0, err
	}
	s.leaderboardChanged(ctx)
	return n, nil
}

// SubscribeLeaderboard returns a channel of ranking snapshots for the given
// section filter, starting with the current one. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *GameService) SubscribeLeaderboard(ctx context.Context, section *int) (<-chan []RankedEntry, func(), error) {
	initial, err := s.Leaderboard(ctx, section)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan []RankedEntry, 8)
	s.mu.Lock()
	s.subscribers[ch] = section
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

// leaderboardChanged invalidates the snapshot cache and pushes fresh rankings
// to subscribers. Slow subscribers lose stale snapshots, never block.
func (s *GameService) leaderboardChanged(ctx context.Context) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			log.Printf("leaderboard cache invalidate: %v", err)
		}
	}

	// Holding the lock across the sends keeps cancel from closing a channel
	// mid-broadcast.
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshots := make(map[string][]RankedEntry)
	for ch, section := range s.subscribers {
		key := sectionKey(section)
		snapshot, ok := snapshots[key]
		if !ok {
			var err error
			snapshot, err = s.Leaderboard(ctx, section)
			if err != nil {
				log.Printf("leaderboard snapshot (%s): %v", key, err)
				continue
			}
			snapshots[key] = snapshot
		}
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

func sectionKey(section *int) string {
	if section == nil {
		return "combined"
	}
	return fmt.Sprintf("section:%d", *section)
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrQuestionNotFound) || errors.Is(err, domain.ErrParticipantNotFound)
}
