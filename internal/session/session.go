// Package session wraps one client connection with an outbound frame queue.
// A dedicated writer goroutine drains the queue so broadcasts never block on
// a slow peer's socket.
package session

import (
	"net"
	"sync"
	"time"
)

// outboundDepth bounds the per-session queue. A peer that falls this far
// behind starts losing notifications rather than stalling the hub.
const outboundDepth = 64

// Session is one authenticated or pre-auth client connection. UID, Username,
// LoginTime and RoomID are written only while holding the hub lock; the
// writer goroutine never touches them.
type Session struct {
	conn net.Conn

	out  chan string
	done chan struct{}
	once sync.Once

	UID       int64
	Username  string
	LoginTime time.Time
	RoomID    int64
}

// New wraps conn and starts its writer goroutine.
func New(conn net.Conn) *Session {
	s := &Session{
		conn: conn,
		out:  make(chan string, outboundDepth),
		done: make(chan struct{}),
	}
	go s.writePump()
	return s
}

// Send enqueues a frame for delivery. It never blocks: if the session's queue
// is full or the session is closed the frame is dropped and Send reports
// false.
func (s *Session) Send(frame string) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// closeGrace bounds the queue drain after Close so a stalled peer cannot
// hold the writer open.
const closeGrace = 250 * time.Millisecond

// Close stops the session. Frames already queued (a FORCE_LOGOUT, say) are
// still flushed, under a write deadline, before the socket closes. Safe to
// call more than once and from any goroutine.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.SetWriteDeadline(time.Now().Add(closeGrace))
	})
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// RemoteAddr returns the peer address for logging.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

func (s *Session) writePump() {
	defer s.conn.Close()
	for {
		select {
		case frame := <-s.out:
			if _, err := s.conn.Write([]byte(frame)); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			// Flush what is already queued, then release the socket.
			for {
				select {
				case frame := <-s.out:
					if _, err := s.conn.Write([]byte(frame)); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
