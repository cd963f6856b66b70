package models

// Channel types a client can subscribe to.
const (
	ChannelL2Book     = "l2Book"
	ChannelSpotL2Book = "spotL2Book"
	ChannelPong       = "pong"
	ChannelStatus     = "status"
)

// Subscription is a client's subscribe intent. Immutable once issued; a new
// subscribe replaces the prior subscription, it never merges with it.
type Subscription struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
	Pair string `json:"pair,omitempty"`
}

// SymbolKey returns the symbol the subscription targets. Spot channels carry
// a pair, perp channels a coin.
func (s Subscription) SymbolKey() string {
	if s.Pair != "" {
		return s.Pair
	}
	return s.Coin
}

// ControlMessage is the client -> gateway WebSocket protocol.
type ControlMessage struct {
	Method       string        `json:"method"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// PushEnvelope is the gateway -> client push format. Upstream payloads are
// forwarded verbatim inside Data.
type PushEnvelope struct {
	Channel   string      `json:"channel"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Source    string      `json:"source,omitempty"`
}

// StatusPayload reports upstream connectivity to the dashboard so it can
// decide to resubscribe. The gateway never reconnects on its own.
type StatusPayload struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// Response is the REST envelope used by every endpoint.
type Response struct {
	OK        bool        `json:"ok"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Source    string      `json:"source,omitempty"`
}
