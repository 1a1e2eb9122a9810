package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"graphquiz/internal/app"
	"graphquiz/internal/domain"
	"graphquiz/internal/infra/sqlite"
)

func TestLeaderboardStream(t *testing.T) {
	ctx := context.Background()

	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	service := app.NewGameService(store, nil)
	handler := NewHandler(service, "letmein")
	server := httptest.NewServer(handler.Router(nil))
	defer server.Close()

	question, err := service.CreateQuestion(ctx, domain.Question{
		GraphJSON:    json.RawMessage(`{"type":"line"}`),
		Text:         "Pick one",
		Options:      []string{"A", "B"},
		CorrectIndex: 0,
		Section:      1,
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	alice, err := service.Register(ctx, "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	u := "ws" + server.URL[len("http"):] + "/ws/leaderboard"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	initial := readSnapshot(t, conn)
	if len(initial) != 1 || initial[0].TotalAnswers != 0 {
		t.Fatalf("expected empty initial snapshot, got %+v", initial)
	}

	if _, err := service.SubmitAnswer(ctx, alice.ID, question.ID, domain.Submission{Index: 0}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	update := readSnapshot(t, conn)
	if len(update) != 1 || update[0].CorrectAnswers != 1 {
		t.Fatalf("expected updated snapshot, got %+v", update)
	}
}

func readSnapshot(t *testing.T, conn *websocket.Conn) []app.RankedEntry {
	t.Helper()
	var msg wsMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "leaderboard" {
		t.Fatalf("expected leaderboard message, got %s", msg.Type)
	}
	return msg.Payload
}
