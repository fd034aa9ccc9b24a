package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jaminalder/tictactoe-bot/internal/app"
)

var wsIdlePingInterval = 30 * time.Second

// The zero Upgrader rejects handshakes whose Origin differs from the Host.
var upgrader = websocket.Upgrader{}

// wsMessage is the frame exchanged on /game/{id}/ws. The server sends
// "snapshot", "error" and "ping"; clients send "move" and "status".
type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsMove struct {
	Cell int `json:"cell"`
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("marshal ws payload")
		return []byte("null")
	}
	return b
}

type wsClient struct {
	send chan []byte
}

// sendJSON queues msg; a full queue drops it.
func (c *wsClient) sendJSON(msg wsMessage) {
	select {
	case c.send <- mustMarshal(msg):
	default:
		log.Warn().Str("type", msg.Type).Msg("ws client queue full, dropping message")
	}
}

func (c *wsClient) snapshot(s app.Snapshot) {
	c.sendJSON(wsMessage{Type: "snapshot", Payload: mustMarshal(s)})
}

func (c *wsClient) fail(err error) {
	c.sendJSON(wsMessage{Type: "error", Payload: mustMarshal(map[string]string{"error": err.Error()})})
}

// forward relays updates until the subscription is closed, then calls done.
// The service closes it when the client lags or the game is evicted.
func (c *wsClient) forward(updates <-chan app.Snapshot, done func()) {
	defer done()
	for s := range updates {
		c.snapshot(s)
	}
}

func (h *handlers) ws(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Subscribe before the handshake so no move after it goes unseen.
	updates, unsub, err := h.svc.Subscribe(ctx, id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer unsub()
	snap, _ := h.svc.Get(id)

	pid := playerID(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := &wsClient{send: make(chan []byte, 16)}
	client.snapshot(snap)
	go client.forward(updates, func() {
		log.Debug().Str("game", id).Msg("ws subscription closed")
		cancel()
		conn.Close()
	})
	go func() {
		defer cancel()
		if err := writeWSWithHeartbeat(ctx, conn, client.send); err != nil {
			log.Debug().Err(err).Str("game", id).Msg("ws write stopped")
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "move":
			var mv wsMove
			if err := json.Unmarshal(msg.Payload, &mv); err != nil {
				client.fail(err)
				continue
			}
			// Successful moves come back through the subscription.
			if _, err := h.svc.Play(id, pid, mv.Cell); err != nil {
				client.fail(err)
			}
		case "status":
			if s, ok := h.svc.Get(id); ok {
				client.snapshot(s)
			}
		}
	}
}

func writeWSWithHeartbeat(ctx context.Context, conn *websocket.Conn, send <-chan []byte) error {
	ticker := time.NewTicker(wsIdlePingInterval)
	defer ticker.Stop()
	lastWrite := time.Now()
	pingPayload := mustMarshal(wsMessage{Type: "ping"})

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-send:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
			lastWrite = time.Now()
		case <-ticker.C:
			if time.Since(lastWrite) < wsIdlePingInterval {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, pingPayload); err != nil {
				return err
			}
			lastWrite = time.Now()
		}
	}
}
