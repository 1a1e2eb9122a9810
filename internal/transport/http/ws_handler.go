package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"graphquiz/internal/app"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Type    string            `json:"type"`
	Payload []app.RankedEntry `json:"payload"`
}

// serveLeaderboardWS streams ranking snapshots: the current one on connect,
// then one message per change. The client never sends; reads only detect the
// close.
func (h *Handler) serveLeaderboardWS(w http.ResponseWriter, r *http.Request) {
	section, err := parseSection(r.URL.Query().Get("section"))
	if err != nil {
		http.Error(w, "invalid section", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.SubscribeLeaderboard(r.Context(), section)
	if err != nil {
		log.Printf("ws subscribe failed: %v", err)
		return
	}
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case entries, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(wsMessage{Type: "leaderboard", Payload: entries}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
