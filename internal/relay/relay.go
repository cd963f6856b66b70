package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"hyperview-gateway/internal/metrics"
	"hyperview-gateway/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Conn is the subset of a WebSocket connection a relay session uses.
// *websocket.Conn satisfies it; tests substitute counting doubles.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens upstream feed connections.
type Dialer interface {
	Dial(url string) (Conn, error)
}

// WebsocketDialer dials the exchange feed with gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
}

func (d *WebsocketDialer) Dial(url string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialer := &websocket.Dialer{HandshakeTimeout: timeout}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// wireFrame is the subscribe/unsubscribe message the exchange feed expects.
type wireFrame struct {
	Method       string              `json:"method"`
	Subscription models.Subscription `json:"subscription"`
}

// Session owns exactly one outbound connection to the exchange's realtime
// feed, serving one client subscription. It forwards every upstream message
// downstream in an envelope and never reconnects: an outage is surfaced via
// onDown and recovery is client-initiated with a fresh subscribe.
type Session struct {
	sub       models.Subscription
	conn      Conn
	source    string
	onMessage func(models.PushEnvelope)
	onDown    func(*Session, error)
	logger    *logrus.Entry

	mu     sync.Mutex
	closed bool
}

// Open dials the feed, sends the subscribe frame and starts forwarding.
// The caller owns the returned session and must Close it.
func Open(
	dialer Dialer,
	url string,
	sub models.Subscription,
	onMessage func(models.PushEnvelope),
	onDown func(*Session, error),
	logger *logrus.Logger,
) (*Session, error) {
	conn, err := dialer.Dial(url)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("hyperliquid").Inc()
		return nil, fmt.Errorf("dial upstream feed: %w", err)
	}

	if err := conn.WriteJSON(wireFrame{Method: "subscribe", Subscription: sub}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send subscribe frame: %w", err)
	}

	s := &Session{
		sub:       sub,
		conn:      conn,
		source:    "hyperliquid",
		onMessage: onMessage,
		onDown:    onDown,
		logger: logger.WithFields(logrus.Fields{
			"channel": sub.Type,
			"symbol":  sub.SymbolKey(),
		}),
	}

	metrics.RelayOpens.Inc()
	metrics.RelayConnections.Inc()
	s.logger.Info("Upstream relay opened")

	go s.readLoop()
	return s, nil
}

// Subscription returns the subscription this relay serves.
func (s *Session) Subscription() models.Subscription {
	return s.sub
}

// Closed reports whether the relay is dead, by Close or upstream failure.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close sends the unsubscribe frame upstream and closes the outbound
// connection before returning. Safe to call more than once; only the first
// call writes the frame, so teardown paths that overlap (unsubscribe then
// connection close) emit at most one unsubscribe.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Best effort: the feed may already be gone.
	if err := s.conn.WriteJSON(wireFrame{Method: "unsubscribe", Subscription: s.sub}); err != nil {
		s.logger.WithError(err).Debug("Failed to send unsubscribe frame")
	}

	err := s.conn.Close()
	metrics.RelayCloses.Inc()
	metrics.RelayConnections.Dec()
	s.logger.Info("Upstream relay closed")
	return err
}

func (s *Session) readLoop() {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.markDown(err)
			return
		}

		if !json.Valid(message) {
			s.logger.Debug("Ignoring non-JSON upstream frame")
			continue
		}

		metrics.RelayMessages.WithLabelValues(s.sub.Type).Inc()
		s.onMessage(models.PushEnvelope{
			Channel:   s.sub.Type,
			Data:      json.RawMessage(message),
			Timestamp: time.Now().UnixMilli(),
			Source:    s.source,
		})
	}
}

// markDown handles an upstream failure: mark dead, release the connection
// and notify the owner exactly once. Close races are resolved by the closed
// flag, so an owner-initiated Close never produces a down notification. The
// callback carries the session so the owner can tell a live relay's failure
// from one it already replaced.
func (s *Session) markDown(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.conn.Close()
	metrics.RelayCloses.Inc()
	metrics.RelayConnections.Dec()
	metrics.RelayErrors.Inc()
	s.logger.WithError(cause).Warn("Upstream relay disconnected")

	if s.onDown != nil {
		s.onDown(s, cause)
	}
}
