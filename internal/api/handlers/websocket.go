package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/home-device-controller/backend/internal/controller"
	"github.com/home-device-controller/backend/internal/events"
	"github.com/home-device-controller/backend/internal/logging"
	"github.com/home-device-controller/backend/internal/voice"
	ws "github.com/home-device-controller/backend/internal/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 65536
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketUpgrade returns a handler that upgrades HTTP connections to WebSocket.
func WebSocketUpgrade(hub *ws.Hub, ctrl *controller.Controller, log zerolog.Logger) http.HandlerFunc {
	log = logging.Component(log, "websocket")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := ws.NewClient(hub)
		if !hub.Register(client) {
			conn.Close()
			return
		}

		go writePump(conn, client)
		go readPump(conn, client, hub, ctrl, log)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the controller.
func readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub, ctrl *controller.Controller, log zerolog.Logger) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		handleClientMessage(context.Background(), message, client, ctrl)
	}
}

// handleClientMessage processes one client message. Results of transcripts
// reach every client through the voice.result broadcast.
func handleClientMessage(ctx context.Context, message []byte, client *ws.Client, ctrl *controller.Controller) {
	var in events.Inbound
	if err := json.Unmarshal(message, &in); err != nil {
		client.Reply(events.NewMessage(events.TypeError, events.ErrorPayload{
			Code:    "bad_request",
			Message: "Invalid message",
		}))
		return
	}

	switch in.Type {
	case events.TypePing:
		client.Reply(events.NewMessage(events.TypePong, nil))

	case events.TypeVoiceTranscript:
		var p events.TranscriptPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			client.Reply(events.NewMessage(events.TypeError, events.ErrorPayload{
				Code:         "bad_request",
				Message:      "Invalid transcript payload",
				OriginalType: string(in.Type),
			}))
			return
		}
		if _, ok := ctrl.DeliverTranscript(ctx, voice.Transcript{Text: p.Text, Final: p.IsFinal()}); !ok && p.IsFinal() {
			client.Reply(events.NewMessage(events.TypeError, events.ErrorPayload{
				Code:         "not_listening",
				Message:      "Transcript ignored: voice session is not listening",
				OriginalType: string(in.Type),
			}))
		}

	default:
		client.Reply(events.NewMessage(events.TypeError, events.ErrorPayload{
			Code:         "unknown_type",
			Message:      "Unknown message type",
			OriginalType: string(in.Type),
		}))
	}
}
