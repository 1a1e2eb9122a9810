package http

import (
	"encoding/json"
	"net/http"
	"time"

	"graphquiz/internal/domain"
)

// playerQuestionView is the gameplay shape: the answer key is stripped.
type playerQuestionView struct {
	ID                   string          `json:"id"`
	GraphData            json.RawMessage `json:"graphData"`
	QuestionText         string          `json:"questionText"`
	Options              []string        `json:"options"`
	AllowMultipleAnswers bool            `json:"allowMultipleAnswers"`
	Tip                  string          `json:"tip"`
	Section              int             `json:"section"`
}

// adminQuestionView includes the answer key.
type adminQuestionView struct {
	ID                   string          `json:"id"`
	GraphJSON            string          `json:"graphJson"`
	GraphData            json.RawMessage `json:"graphData"`
	QuestionText         string          `json:"questionText"`
	Options              []string        `json:"options"`
	AllowMultipleAnswers bool            `json:"allowMultipleAnswers"`
	CorrectAnswer        int             `json:"correctAnswer"`
	CorrectAnswers       []int           `json:"correctAnswers,omitempty"`
	Tip                  string          `json:"tip"`
	Section              int             `json:"section"`
	CreatedAt            time.Time       `json:"createdAt"`
}

func playerView(q domain.Question) playerQuestionView {
	return playerQuestionView{
		ID:                   q.ID,
		GraphData:            q.GraphJSON,
		QuestionText:         q.Text,
		Options:              q.Options,
		AllowMultipleAnswers: q.Multi,
		Tip:                  q.Tip,
		Section:              q.Section,
	}
}

func adminView(q domain.Question) adminQuestionView {
	return adminQuestionView{
		ID:                   q.ID,
		GraphJSON:            string(q.GraphJSON),
		GraphData:            q.GraphJSON,
		QuestionText:         q.Text,
		Options:              q.Options,
		AllowMultipleAnswers: q.Multi,
		CorrectAnswer:        q.CorrectIndex,
		CorrectAnswers:       q.CorrectSet,
		Tip:                  q.Tip,
		Section:              q.Section,
		CreatedAt:            q.CreatedAt,
	}
}

func participantView(p domain.Participant) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"name":      p.Name,
		"createdAt": p.CreatedAt,
	}
}

func gameStateView(state domain.GameState) map[string]any {
	return map[string]any{
		"isActive":      state.Active,
		"activeSection": state.ActiveSection,
	}
}

// decodeQuestion parses the admin create/update payload into a domain
// question; responds with 400 and returns ok=false on malformed input.
func decodeQuestion(w http.ResponseWriter, r *http.Request) (domain.Question, bool) {
	var req struct {
		GraphJSON            string   `json:"graphJson"`
		QuestionText         string   `json:"questionText"`
		Options              []string `json:"options"`
		AllowMultipleAnswers bool     `json:"allowMultipleAnswers"`
		CorrectAnswer        *int     `json:"correctAnswer"`
		CorrectAnswers       []int    `json:"correctAnswers"`
		Tip                  string   `json:"tip"`
		Section              int      `json:"section"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return domain.Question{}, false
	}
	if req.GraphJSON == "" || req.QuestionText == "" || len(req.Options) == 0 {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return domain.Question{}, false
	}
	if !req.AllowMultipleAnswers && req.CorrectAnswer == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return domain.Question{}, false
	}

	q := domain.Question{
		GraphJSON: json.RawMessage(req.GraphJSON),
		Text:      req.QuestionText,
		Options:   req.Options,
		Multi:     req.AllowMultipleAnswers,
		Tip:       req.Tip,
		Section:   req.Section,
	}
	if req.AllowMultipleAnswers {
		q.CorrectSet = req.CorrectAnswers
	} else {
		q.CorrectIndex = *req.CorrectAnswer
	}
	return q, true
}
