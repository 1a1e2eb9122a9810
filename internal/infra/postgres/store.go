// Package postgres implements app.Store over a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"graphquiz/internal/domain"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateParticipant(ctx context.Context, p domain.Participant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO participants (id, name, created_at) VALUES ($1, $2, $3)`,
		p.ID, p.Name, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *Store) Participant(ctx context.Context, id string) (domain.Participant, error) {
	var p domain.Participant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM participants WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return p, nil
}

func (s *Store) Participants(ctx context.Context) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, created_at FROM participants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) error {
	options, correctSet, err := marshalKey(q)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO questions (id, graph_json, question_text, options_json, multi, correct_answer, correct_answers_json, tip, section, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		q.ID, string(q.GraphJSON), q.Text, options, q.Multi, q.CorrectIndex, correctSet, q.Tip, q.Section, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q domain.Question) error {
	options, correctSet, err := marshalKey(q)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET graph_json = $1, question_text = $2, options_json = $3, multi = $4, correct_answer = $5, correct_answers_json = $6, tip = $7, section = $8
		 WHERE id = $9`,
		string(q.GraphJSON), q.Text, options, q.Multi, q.CorrectIndex, correctSet, q.Tip, q.Section, q.ID)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM scores WHERE question_id = $1`, id); err != nil {
		return fmt.Errorf("delete question scores: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return tx.Commit(ctx)
}

func (s *Store) Question(ctx context.Context, id string) (domain.Question, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, graph_json, question_text, options_json, multi, correct_answer, correct_answers_json, tip, section, created_at
		 FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, err
}

func (s *Store) Questions(ctx context.Context, section *int) ([]domain.Question, error) {
	query := `SELECT id, graph_json, question_text, options_json, multi, correct_answer, correct_answers_json, tip, section, created_at
	          FROM questions`
	var args []any
	if section != nil {
		query += ` WHERE section = $1`
		args = append(args, *section)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// InsertScore relies on the (participant_id, question_id) unique constraint:
// the conditional insert is the atomic already-answered guard.
func (s *Store) InsertScore(ctx context.Context, rec domain.ScoreRecord) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO scores (id, participant_id, question_id, credit, section, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (participant_id, question_id) DO NOTHING`,
		rec.ID, rec.ParticipantID, rec.QuestionID, int(rec.Credit), rec.Section, rec.AnsweredAt)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyAnswered
	}
	return nil
}

func (s *Store) Scores(ctx context.Context, section *int) ([]domain.ScoreRecord, error) {
	query := `SELECT id, participant_id, question_id, credit, section, answered_at FROM scores`
	var args []any
	if section != nil {
		query += ` WHERE section = $1`
		args = append(args, *section)
	}
	return s.queryScores(ctx, query, args...)
}

func (s *Store) ParticipantScores(ctx context.Context, participantID string) ([]domain.ScoreRecord, error) {
	return s.queryScores(ctx,
		`SELECT id, participant_id, question_id, credit, section, answered_at FROM scores WHERE participant_id = $1`,
		participantID)
}

func (s *Store) queryScores(ctx context.Context, query string, args ...any) ([]domain.ScoreRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select scores: %w", err)
	}
	defer rows.Close()

	var records []domain.ScoreRecord
	for rows.Next() {
		var rec domain.ScoreRecord
		var credit int
		if err := rows.Scan(&rec.ID, &rec.ParticipantID, &rec.QuestionID, &credit, &rec.Section, &rec.AnsweredAt); err != nil {
			return nil, err
		}
		rec.Credit = domain.Credit(credit)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) ResetScores(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scores`)
	if err != nil {
		return 0, fmt.Errorf("reset scores: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) GameState(ctx context.Context) (domain.GameState, error) {
	var state domain.GameState
	var section *int
	err := s.pool.QueryRow(ctx,
		`SELECT is_active, active_section, updated_at FROM game_state WHERE id = 1`).
		Scan(&state.Active, &section, &state.UpdatedAt)
	if err != nil {
		return domain.GameState{}, fmt.Errorf("select game state: %w", err)
	}
	state.ActiveSection = section
	return state, nil
}

func (s *Store) SetGameState(ctx context.Context, active bool, section *int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE game_state SET is_active = $1, active_section = $2, updated_at = now() WHERE id = 1`,
		active, section)
	if err != nil {
		return fmt.Errorf("update game state: %w", err)
	}
	return nil
}

func marshalKey(q domain.Question) (options string, correctSet *string, err error) {
	raw, err := json.Marshal(q.Options)
	if err != nil {
		return "", nil, fmt.Errorf("marshal options: %w", err)
	}
	if q.Multi {
		set, err := json.Marshal(q.CorrectSet)
		if err != nil {
			return "", nil, fmt.Errorf("marshal answer key: %w", err)
		}
		s := string(set)
		return string(raw), &s, nil
	}
	return string(raw), nil, nil
}

func scanQuestion(scan func(dest ...any) error) (domain.Question, error) {
	var q domain.Question
	var graph, options string
	var correctSet *string
	if err := scan(&q.ID, &graph, &q.Text, &options, &q.Multi, &q.CorrectIndex, &correctSet, &q.Tip, &q.Section, &q.CreatedAt); err != nil {
		return domain.Question{}, err
	}
	q.GraphJSON = json.RawMessage(graph)
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal options: %w", err)
	}
	if q.Multi && correctSet != nil {
		if err := json.Unmarshal([]byte(*correctSet), &q.CorrectSet); err != nil {
			return domain.Question{}, fmt.Errorf("unmarshal answer key: %w", err)
		}
	}
	return q, nil
}
