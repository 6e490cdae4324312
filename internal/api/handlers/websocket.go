package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/bethesda-shelter/backend/internal/api/middleware"
	ws "github.com/bethesda-shelter/backend/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard is served from behind the same proxy.
		return true
	},
}

// ChatSocket upgrades the connection and joins the staff channel: chat
// messages in both directions plus bed and reservation events pushed out.
// Missed events are recovered by the client snapshotting on reconnect.
// The token gates access; validation is delegated to the deployment's
// auth layer via the validate callback.
func ChatSocket(hub *ws.Hub, validate func(token string) (string, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		sender := "staff"
		if validate != nil {
			name, ok := validate(token)
			if !ok {
				middleware.WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			sender = name
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := ws.NewClient(hub)
		hub.Register(client)

		go writePump(conn, client)
		go readPump(conn, client, hub, sender)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps incoming chat messages to the hub.
func readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub, sender string) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	broadcaster := ws.NewEventBroadcaster(hub)

	conn.SetReadLimit(65536)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case ws.TypePing:
			pong, err := ws.NewMessage(ws.TypePong, nil).JSON()
			if err == nil {
				select {
				case client.Send() <- pong:
				default:
				}
			}

		case ws.TypeChatMessage:
			raw, err := json.Marshal(msg.Payload)
			if err != nil {
				continue
			}
			var chat ws.ChatPayload
			if err := json.Unmarshal(raw, &chat); err != nil || chat.Body == "" {
				continue
			}
			broadcaster.ChatMessage(sender, chat.Body)
		}
	}
}
