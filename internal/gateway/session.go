package gateway

import (
	"sync"

	"hyperview-gateway/internal/models"
	"hyperview-gateway/internal/relay"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// SessionState is the lifecycle of one client connection.
type SessionState int

const (
	StateConnected SessionState = iota
	StateSubscribed
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateSubscribed:
		return "SUBSCRIBED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ClientSession is one inbound dashboard connection. It exclusively owns at
// most one upstream relay session; the relay never outlives it.
type ClientSession struct {
	ID     string
	conn   *websocket.Conn
	logger *logrus.Entry

	// mu guards state and relay ownership.
	mu    sync.Mutex
	state SessionState
	relay *relay.Session

	// writeMu serializes writes: the read loop and relay forwarding
	// goroutines both push frames down the same connection.
	writeMu sync.Mutex
}

// State returns the current lifecycle state.
func (s *ClientSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ClientSession) send(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// forward pushes a relay envelope downstream. Writes after close are
// harmless: the connection write just fails and is dropped.
func (s *ClientSession) forward(env models.PushEnvelope) {
	if err := s.send(env); err != nil {
		s.logger.WithError(err).Debug("Dropped push to client")
	}
}

// detachRelay removes and returns the owned relay, if any, moving a
// subscribed session back to CONNECTED.
func (s *ClientSession) detachRelay() *relay.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := s.relay
	s.relay = nil
	if rs != nil && s.state == StateSubscribed {
		s.state = StateConnected
	}
	return rs
}
