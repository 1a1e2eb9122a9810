// Package http exposes the quiz over the JSON API consumed by the frontend,
// plus a websocket leaderboard stream.
package http

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"graphquiz/internal/app"
	"graphquiz/internal/domain"
)

type Handler struct {
	service       *app.GameService
	adminPassword string
}

func NewHandler(service *app.GameService, adminPassword string) *Handler {
	return &Handler{service: service, adminPassword: adminPassword}
}

// Router builds the full route tree. allowedOrigins feeds the CORS layer;
// empty means same-origin only plus non-browser clients.
func (h *Handler) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Get("/user/{id}", h.getUser)
		r.Get("/game-state", h.gameState)
		r.Get("/questions", h.openQuestions)
		r.Post("/answer", h.submitAnswer)
		r.Get("/leaderboard", h.leaderboard)
		r.Get("/user-score/{userId}", h.userScore)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.adminAuth)
			r.Post("/game-state", h.setGameState)
			r.Get("/questions", h.listQuestions)
			r.Post("/questions", h.createQuestion)
			r.Put("/questions/{id}", h.updateQuestion)
			r.Delete("/questions/{id}", h.deleteQuestion)
			r.Get("/users", h.listUsers)
			r.Delete("/reset-scores", h.resetScores)
		})
	})

	r.Get("/ws/leaderboard", h.serveLeaderboardWS)

	return r
}

// adminAuth checks HTTP Basic credentials; only the password matters.
func (h *Handler) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}
		_, password, found := strings.Cut(string(decoded), ":")
		if !found {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}
		if subtle.ConstantTimeCompare([]byte(password), []byte(h.adminPassword)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.service.Register(r.Context(), req.Name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":      p.ID,
		"name":    p.Name,
		"message": "User registered successfully",
	})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Participant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participantView(p))
}

func (h *Handler) gameState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.GameState(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameStateView(state))
}

func (h *Handler) openQuestions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	questions, err := h.service.OpenQuestions(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	views := make([]playerQuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, playerView(q))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string          `json:"userId"`
		QuestionID string          `json:"questionId"`
		Answer     json.RawMessage `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.QuestionID == "" || len(req.Answer) == 0 {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	submission, err := parseSubmission(req.Answer)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid answer payload")
		return
	}

	outcome, err := h.service.SubmitAnswer(r.Context(), req.UserID, req.QuestionID, submission)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	var correctAnswer any = outcome.CorrectIndex
	if outcome.Multi {
		correctAnswer = outcome.CorrectSet
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"isCorrect":     outcome.Correct,
		"score":         outcome.Score,
		"correctAnswer": correctAnswer,
		"tip":           outcome.Tip,
	})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	section, err := parseSection(r.URL.Query().Get("section"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid section")
		return
	}
	entries, err := h.service.Leaderboard(r.Context(), section)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) userScore(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.ParticipantTotals(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalAnswers":   totals.TotalAnswers,
		"correctAnswers": totals.CorrectAnswers,
	})
}

func (h *Handler) setGameState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsActive      bool            `json:"isActive"`
		ActiveSection json.RawMessage `json:"activeSection"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// An omitted activeSection keeps the stored one so a plain start/stop
	// toggle doesn't wipe the section filter; an explicit null clears it.
	var section *int
	switch {
	case len(req.ActiveSection) == 0:
		current, err := h.service.GameState(r.Context())
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		section = current.ActiveSection
	case string(req.ActiveSection) == "null":
	default:
		var n int
		if err := json.Unmarshal(req.ActiveSection, &n); err != nil {
			writeError(w, http.StatusBadRequest, "invalid activeSection")
			return
		}
		section = &n
	}

	state, err := h.service.SetGameState(r.Context(), req.IsActive, section)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	view := gameStateView(state)
	if req.IsActive {
		view["message"] = "Game started successfully"
	} else {
		view["message"] = "Game stopped successfully"
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.service.ListQuestions(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	views := make([]adminQuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, adminView(q))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) createQuestion(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	created, err := h.service.CreateQuestion(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":      created.ID,
		"message": "Question created successfully",
	})
}

func (h *Handler) updateQuestion(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	q.ID = chi.URLParam(r, "id")
	if err := h.service.UpdateQuestion(r.Context(), q); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Question updated successfully"})
}

func (h *Handler) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteQuestion(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Question deleted successfully"})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	participants, err := h.service.ListParticipants(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(participants))
	for _, p := range participants {
		views = append(views, participantView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) resetScores(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ResetScores(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "All scores have been reset",
		"deletedCount": n,
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case app.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrInvalidAnswer),
		errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, domain.ErrNameRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseSubmission accepts the two shapes the frontend sends: a bare option
// index or an array of indices. A JSON null would unmarshal into an int as a
// no-op and masquerade as index 0, so it is rejected up front.
func parseSubmission(raw json.RawMessage) (domain.Submission, error) {
	if string(raw) == "null" {
		return domain.Submission{}, domain.ErrInvalidAnswer
	}
	var index int
	if err := json.Unmarshal(raw, &index); err == nil {
		return domain.Submission{Index: index}, nil
	}
	var set []int
	if err := json.Unmarshal(raw, &set); err != nil {
		return domain.Submission{}, err
	}
	return domain.Submission{Set: set, IsSet: true}, nil
}

// parseSection maps the query value to a filter: "" and "combined" mean all
// sections.
func parseSection(raw string) (*int, error) {
	if raw == "" || raw == "combined" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
