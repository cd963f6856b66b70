package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"hyperview-gateway/internal/metrics"
	"hyperview-gateway/internal/models"
	"hyperview-gateway/internal/relay"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Gateway accepts dashboard WebSocket connections and brokers their
// subscribe/unsubscribe intents into upstream relay sessions. Events for a
// single session are processed in the order received (one read loop per
// connection); no ordering holds across sessions.
type Gateway struct {
	upstreamURL string
	dialer      relay.Dialer
	upgrader    websocket.Upgrader
	logger      *logrus.Logger

	// mu guards the session registry, the only state shared across
	// connections.
	mu       sync.Mutex
	sessions map[string]*ClientSession
}

func New(upstreamURL string, dialer relay.Dialer, logger *logrus.Logger) *Gateway {
	return &Gateway{
		upstreamURL: upstreamURL,
		dialer:      dialer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The dashboard is served from its own origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:   logger,
		sessions: make(map[string]*ClientSession),
	}
}

// ServeHTTP upgrades the connection and runs the session until the client
// goes away. gorilla's upgrader already runs each connection on its own
// goroutine via the HTTP server.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	sess := &ClientSession{
		ID:    uuid.NewString(),
		conn:  conn,
		state: StateConnected,
	}
	sess.logger = g.logger.WithField("session", sess.ID)

	g.mu.Lock()
	g.sessions[sess.ID] = sess
	count := len(g.sessions)
	g.mu.Unlock()

	metrics.SessionsTotal.Inc()
	metrics.ActiveSessions.Set(float64(count))
	sess.logger.Infof("Client connected (%d active)", count)

	g.runSession(sess)
}

// SessionCount returns the number of registered client sessions.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// CloseAll tears down every session, cascading closure to owned relays.
// Used on shutdown.
func (g *Gateway) CloseAll() {
	g.mu.Lock()
	sessions := make([]*ClientSession, 0, len(g.sessions))
	for _, sess := range g.sessions {
		sessions = append(sessions, sess)
	}
	g.mu.Unlock()

	for _, sess := range sessions {
		g.closeSession(sess)
	}
}

func (g *Gateway) runSession(sess *ClientSession) {
	defer g.closeSession(sess)

	for {
		_, message, err := sess.conn.ReadMessage()
		if err != nil {
			sess.logger.WithError(err).Debug("Client read loop ended")
			return
		}

		var msg models.ControlMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			// Malformed frames are ignored, not fatal.
			sess.logger.Debug("Ignoring malformed control message")
			continue
		}

		metrics.ControlMessages.WithLabelValues(msg.Method).Inc()

		switch msg.Method {
		case "ping":
			if err := sess.send(models.PushEnvelope{Channel: models.ChannelPong}); err != nil {
				sess.logger.WithError(err).Debug("Failed to send pong")
			}

		case "subscribe":
			if msg.Subscription == nil {
				sess.logger.Debug("Ignoring subscribe without subscription")
				continue
			}
			g.subscribe(sess, *msg.Subscription)

		case "unsubscribe":
			g.unsubscribe(sess)

		default:
			// Unknown message shapes are ignored, not fatal.
			sess.logger.Debugf("Ignoring unknown method %q", msg.Method)
		}
	}
}

// subscribe replaces the session's relay with a fresh one for sub. The old
// relay is fully closed (unsubscribe frame sent, connection released) before
// the new one opens, so at most one upstream connection is live per client
// at any instant.
func (g *Gateway) subscribe(sess *ClientSession, sub models.Subscription) {
	if old := sess.detachRelay(); old != nil {
		old.Close()
	}

	rs, err := relay.Open(
		g.dialer,
		g.upstreamURL,
		sub,
		sess.forward,
		func(rs *relay.Session, cause error) { g.relayDown(sess, rs, cause) },
		g.logger,
	)
	if err != nil {
		sess.logger.WithError(err).Warnf("Failed to open upstream relay for %s", sub.SymbolKey())
		sess.forward(models.PushEnvelope{
			Channel: models.ChannelStatus,
			Data:    models.StatusPayload{Connected: false, Error: "failed to connect to upstream feed"},
		})
		return
	}

	sess.mu.Lock()
	sess.relay = rs
	sess.state = StateSubscribed
	sess.mu.Unlock()

	sess.logger.Infof("Subscribed to %s %s", sub.Type, sub.SymbolKey())
}

// unsubscribe closes the owned relay if one exists; a no-op otherwise.
func (g *Gateway) unsubscribe(sess *ClientSession) {
	rs := sess.detachRelay()
	if rs == nil {
		return
	}
	rs.Close()
	sess.logger.Infof("Unsubscribed from %s", rs.Subscription().SymbolKey())
}

// relayDown reports an upstream outage to the client. The gateway never
// reconnects on its own; the dashboard decides whether to resubscribe. A
// relay the session no longer owns dies silently: its read error racing an
// unsubscribe or replacement must not look like an outage of the live feed.
func (g *Gateway) relayDown(sess *ClientSession, rs *relay.Session, cause error) {
	sess.mu.Lock()
	if sess.state == StateClosed || sess.relay != rs {
		sess.mu.Unlock()
		return
	}
	sess.relay = nil
	if sess.state == StateSubscribed {
		sess.state = StateConnected
	}
	sess.mu.Unlock()

	sess.forward(models.PushEnvelope{
		Channel: models.ChannelStatus,
		Data:    models.StatusPayload{Connected: false, Error: cause.Error()},
	})
}

// closeSession is the cleanup cascade: no relay may outlive its owning
// client session. Idempotent; the relay close happens synchronously before
// the session is dropped from the registry.
func (g *Gateway) closeSession(sess *ClientSession) {
	sess.mu.Lock()
	if sess.state == StateClosed {
		sess.mu.Unlock()
		return
	}
	sess.state = StateClosed
	rs := sess.relay
	sess.relay = nil
	sess.mu.Unlock()

	if rs != nil {
		rs.Close()
	}
	_ = sess.conn.Close()

	g.mu.Lock()
	delete(g.sessions, sess.ID)
	count := len(g.sessions)
	g.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	sess.logger.Infof("Client disconnected (%d active)", count)
}
