package broadcast

import (
	"errors"
	"fmt"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// ErrSubscriberUnreachable marks a failed push. The subscriber is pruned.
var ErrSubscriberUnreachable = errors.New("subscriber unreachable")

// ErrTransportFault is returned when the listener fails.
var ErrTransportFault = errors.New("broadcast transport fault")

// Conn is the part of *websocket.Conn a subscriber uses.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// subscriber wraps one push connection. Writes come from the run loop
// (pushes) and the read goroutine (pongs), so they share mu.
type subscriber struct {
	id        uint64
	remote    string
	conn      Conn
	writeWait time.Duration

	mu     sync.Mutex
	closed bool
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: connection closed", ErrSubscriberUnreachable)
	}
	if s.writeWait > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
			return fmt.Errorf("%w: %w", ErrSubscriberUnreachable, err)
		}
	}
	if err := s.conn.WriteMessage(ws.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscriberUnreachable, err)
	}
	return nil
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}
