package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zeusync/cubenav/internal/core/observability/log"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWebSocket streams snapshot frames to one client. The client is sent
// the latest snapshot right away and every new one after that. Anything the
// client sends is discarded.
func (s *Inspector) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	frames, ok := s.register(id)
	if !ok {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.unregister(id)
		s.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}
	clientLogger := s.logger.With(log.String("client_id", id), log.String("remote_addr", conn.RemoteAddr().String()))
	clientLogger.Debug("Client connected")

	defer func() {
		s.unregister(id)
		_ = conn.Close()
		clientLogger.Debug("Client disconnected")
	}()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if frame := s.Latest(); frame != nil {
		if err := s.write(conn, frame); err != nil {
			return
		}
	}

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "inspector closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := s.write(conn, frame); err != nil {
				clientLogger.Debug("write failed", log.Error(err))
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Inspector) write(conn *websocket.Conn, frame []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}
