package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

// WebSocketSink writes events as JSON text frames. Writes are serialized since
// gorilla connections allow one concurrent writer.
type WebSocketSink struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketSink wraps conn
func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn, writeTimeout: defaultWriteTimeout}
}

func (s *WebSocketSink) Send(event Event) error {
	return s.WriteJSON(event)
}

// WriteJSON writes any frame under the sink's lock
func (s *WebSocketSink) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}
