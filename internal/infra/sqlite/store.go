// Package sqlite implements app.Store over modernc.org/sqlite, the default
// single-file backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"graphquiz/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS participants (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
    id TEXT PRIMARY KEY,
    graph_json TEXT NOT NULL,
    question_text TEXT NOT NULL,
    options_json TEXT NOT NULL,
    multi INTEGER NOT NULL DEFAULT 0,
    correct_answer INTEGER NOT NULL DEFAULT 0,
    correct_answers_json TEXT,
    tip TEXT NOT NULL DEFAULT '',
    section INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scores (
    id TEXT PRIMARY KEY,
    participant_id TEXT NOT NULL REFERENCES participants(id),
    question_id TEXT NOT NULL REFERENCES questions(id),
    credit INTEGER NOT NULL,
    section INTEGER NOT NULL,
    answered_at INTEGER NOT NULL,
    UNIQUE (participant_id, question_id)
);

CREATE INDEX IF NOT EXISTS idx_scores_participant ON scores(participant_id);
CREATE INDEX IF NOT EXISTS idx_scores_question ON scores(question_id);

CREATE TABLE IF NOT EXISTS game_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    is_active INTEGER NOT NULL DEFAULT 0,
    active_section INTEGER,
    updated_at INTEGER NOT NULL
);

INSERT OR IGNORE INTO game_state (id, is_active, active_section, updated_at)
VALUES (1, 0, NULL, 0);
`

// Store is a SQLite-backed app.Store. Timestamps are stored as unix
// nanoseconds to keep round-trips exact across drivers.
type Store struct {
	db *sql.DB
}

// Open opens (and bootstraps) the database at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc.org/sqlite connections don't share an in-memory database and
	// writes don't overlap; a single connection sidesteps both.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateParticipant(ctx context.Context, p domain.Participant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (id, name, created_at) VALUES (?, ?, ?)`,
		p.ID, p.Name, p.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *Store) Participant(ctx context.Context, id string) (domain.Participant, error) {
	var p domain.Participant
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM participants WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	p.CreatedAt = time.Unix(0, createdAt)
	return p, nil
}

func (s *Store) Participants(ctx context.Context) ([]domain.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM participants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.Name, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(0, createdAt)
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) error {
	options, correctSet, err := marshalQuestion(q)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (id, graph_json, question_text, options_json, multi, correct_answer, correct_answers_json, tip, section, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, string(q.GraphJSON), q.Text, options, boolToInt(q.Multi), q.CorrectIndex, correctSet, q.Tip, q.Section, q.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q domain.Question) error {
	options, correctSet, err := marshalQuestion(q)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET graph_json = ?, question_text = ?, options_json = ?, multi = ?, correct_answer = ?, correct_answers_json = ?, tip = ?, section = ?
		 WHERE id = ?`,
		string(q.GraphJSON), q.Text, options, boolToInt(q.Multi), q.CorrectIndex, correctSet, q.Tip, q.Section, q.ID)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

// DeleteQuestion removes the question and its dependent scores.
func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scores WHERE question_id = ?`, id); err != nil {
		return fmt.Errorf("delete question scores: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrQuestionNotFound
	}
	return tx.Commit()
}

func (s *Store) Question(ctx context.Context, id string) (domain.Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, graph_json, question_text, options_json, multi, correct_answer, correct_answers_json, tip, section, created_at
		 FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, err
}

// Questions lists questions in creation order, optionally one section only.
func (s *Store) Questions(ctx context.Context, section *int) ([]domain.Question, error) {
	query := `SELECT id, graph_json, question_text, options_json, multi, correct_answer, correct_answers_json, tip, section, created_at
	          FROM questions`
	var args []any
	if section != nil {
		query += ` WHERE section = ?`
		args = append(args, *section)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// InsertScore inserts at most one record per (participant, question) pair.
// The unique index makes the guard atomic; a conflict surfaces as
// domain.ErrAlreadyAnswered.
func (s *Store) InsertScore(ctx context.Context, rec domain.ScoreRecord) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scores (id, participant_id, question_id, credit, section, answered_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (participant_id, question_id) DO NOTHING`,
		rec.ID, rec.ParticipantID, rec.QuestionID, int(rec.Credit), rec.Section, rec.AnsweredAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrAlreadyAnswered
	}
	return nil
}

func (s *Store) Scores(ctx context.Context, section *int) ([]domain.ScoreRecord, error) {
	query := `SELECT id, participant_id, question_id, credit, section, answered_at FROM scores`
	var args []any
	if section != nil {
		query += ` WHERE section = ?`
		args = append(args, *section)
	}
	return s.queryScores(ctx, query, args...)
}

func (s *Store) ParticipantScores(ctx context.Context, participantID string) ([]domain.ScoreRecord, error) {
	return s.queryScores(ctx,
		`SELECT id, participant_id, question_id, credit, section, answered_at FROM scores WHERE participant_id = ?`,
		participantID)
}

func (s *Store) queryScores(ctx context.Context, query string, args ...any) ([]domain.ScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select scores: %w", err)
	}
	defer rows.Close()

	var records []domain.ScoreRecord
	for rows.Next() {
		var rec domain.ScoreRecord
		var credit int
		var answeredAt int64
		if err := rows.Scan(&rec.ID, &rec.ParticipantID, &rec.QuestionID, &credit, &rec.Section, &answeredAt); err != nil {
			return nil, err
		}
		rec.Credit = domain.Credit(credit)
		rec.AnsweredAt = time.Unix(0, answeredAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) ResetScores(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scores`)
	if err != nil {
		return 0, fmt.Errorf("reset scores: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) GameState(ctx context.Context) (domain.GameState, error) {
	var state domain.GameState
	var active int
	var section sql.NullInt64
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT is_active, active_section, updated_at FROM game_state WHERE id = 1`).
		Scan(&active, &section, &updatedAt)
	if err != nil {
		return domain.GameState{}, fmt.Errorf("select game state: %w", err)
	}
	state.Active = active != 0
	if section.Valid {
		v := int(section.Int64)
		state.ActiveSection = &v
	}
	state.UpdatedAt = time.Unix(0, updatedAt)
	return state, nil
}

func (s *Store) SetGameState(ctx context.Context, active bool, section *int) error {
	var sectionArg any
	if section != nil {
		sectionArg = *section
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE game_state SET is_active = ?, active_section = ?, updated_at = ? WHERE id = 1`,
		boolToInt(active), sectionArg, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("update game state: %w", err)
	}
	return nil
}

func marshalQuestion(q domain.Question) (options string, correctSet any, err error) {
	raw, err := json.Marshal(q.Options)
	if err != nil {
		return "", nil, fmt.Errorf("marshal options: %w", err)
	}
	if q.Multi {
		set, err := json.Marshal(q.CorrectSet)
		if err != nil {
			return "", nil, fmt.Errorf("marshal answer key: %w", err)
		}
		return string(raw), string(set), nil
	}
	return string(raw), nil, nil
}

func scanQuestion(scan func(dest ...any) error) (domain.Question, error) {
	var q domain.Question
	var graph, options string
	var correctSet sql.NullString
	var multi int
	var createdAt int64
	if err := scan(&q.ID, &graph, &q.Text, &options, &multi, &q.CorrectIndex, &correctSet, &q.Tip, &q.Section, &createdAt); err != nil {
		return domain.Question{}, err
	}
	q.GraphJSON = json.RawMessage(graph)
	q.Multi = multi != 0
	q.CreatedAt = time.Unix(0, createdAt)
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal options: %w", err)
	}
	if q.Multi && correctSet.Valid && strings.TrimSpace(correctSet.String) != "" {
		if err := json.Unmarshal([]byte(correctSet.String), &q.CorrectSet); err != nil {
			return domain.Question{}, fmt.Errorf("unmarshal answer key: %w", err)
		}
	}
	return q, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
