package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// WSSink sends each chunk as one websocket text frame.
type WSSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewWSSink(conn *websocket.Conn) *WSSink {
	return &WSSink{conn: conn}
}

func (s *WSSink) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, p)
}

// Close sends a close frame with code and reason. The caller still owns
// conn.
func (s *WSSink) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	return s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
