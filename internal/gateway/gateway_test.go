package gateway

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hyperview-gateway/internal/models"
	"hyperview-gateway/internal/relay"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstreamFrame is the shape of subscribe/unsubscribe frames the fake
// upstream records.
type upstreamFrame struct {
	Method       string              `json:"method"`
	Subscription models.Subscription `json:"subscription"`
}

// fakeUpstreamConn stands in for one connection to the exchange feed.
type fakeUpstreamConn struct {
	mu     sync.Mutex
	frames []upstreamFrame

	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeUpstreamConn() *fakeUpstreamConn {
	return &fakeUpstreamConn{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeUpstreamConn) WriteJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame upstreamFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
	return nil
}

func (c *fakeUpstreamConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.inbound:
		return websocket.TextMessage, msg, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeUpstreamConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeUpstreamConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeUpstreamConn) methodCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.Method == method {
			n++
		}
	}
	return n
}

// fakeUpstreamDialer hands out one fresh fake connection per dial.
type fakeUpstreamDialer struct {
	mu    sync.Mutex
	conns []*fakeUpstreamConn
	err   error
}

func (d *fakeUpstreamDialer) Dial(url string) (relay.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	conn := newFakeUpstreamConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeUpstreamDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeUpstreamDialer) conn(i int) *fakeUpstreamConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

// clientEnvelope mirrors the push envelope as the dashboard sees it.
type clientEnvelope struct {
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Source    string          `json:"source"`
}

func newTestGateway(t *testing.T, dialer *fakeUpstreamDialer) (*Gateway, *httptest.Server) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	gw := New("ws://feed", dialer, logger)
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return gw, srv
}

func dialClient(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) clientEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env clientEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func sendControl(t *testing.T, conn *websocket.Conn, msg models.ControlMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func l2BookSub(coin string) *models.Subscription {
	return &models.Subscription{Type: models.ChannelL2Book, Coin: coin}
}

func TestPingPong(t *testing.T) {
	_, srv := newTestGateway(t, &fakeUpstreamDialer{})
	conn := dialClient(t, srv)

	sendControl(t, conn, models.ControlMessage{Method: "ping"})

	env := readEnvelope(t, conn)
	assert.Equal(t, models.ChannelPong, env.Channel)
}

func TestSubscribeOpensRelayAndForwards(t *testing.T) {
	dialer := &fakeUpstreamDialer{}
	_, srv := newTestGateway(t, dialer)
	conn := dialClient(t, srv)

	sendControl(t, conn, models.ControlMessage{Method: "subscribe", Subscription: l2BookSub("ETH")})

	require.Eventually(t, func() bool { return dialer.dialCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	upstream := dialer.conn(0)
	assert.Equal(t, 1, upstream.methodCount("subscribe"))

	upstream.inbound <- []byte(`{"levels":[[],[]],"coin":"ETH"}`)

	env := readEnvelope(t, conn)
	assert.Equal(t, models.ChannelL2Book, env.Channel)
	assert.Equal(t, "hyperliquid", env.Source)
	assert.JSONEq(t, `{"levels":[[],[]],"coin":"ETH"}`, string(env.Data))
}

func TestResubscribeReplacesRelay(t *testing.T) {
	dialer := &fakeUpstreamDialer{}
	_, srv := newTestGateway(t, dialer)
	conn := dialClient(t, srv)

	sendControl(t, conn, models.ControlMessage{Method: "subscribe", Subscription: l2BookSub("ETH")})
	sendControl(t, conn, models.ControlMessage{Method: "subscribe", Subscription: l2BookSub("BTC")})

	require.Eventually(t, func() bool { return dialer.dialCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	first := dialer.conn(0)
	second := dialer.conn(1)

	// The old feed connection is torn down before the new one opens.
	assert.True(t, first.isClosed())
	assert.Equal(t, 1, first.methodCount("unsubscribe"))
	assert.False(t, second.isClosed())

	// Only the live relay reaches the client.
	second.inbound <- []byte(`{"coin":"BTC"}`)
	env := readEnvelope(t, conn)
	assert.JSONEq(t, `{"coin":"BTC"}`, string(env.Data))
}

func TestUnsubscribeClosesRelay(t *testing.T) {
	dialer := &fakeUpstreamDialer{}
	_, srv := newTestGateway(t, dialer)
	conn := dialClient(t, srv)

	sendControl(t, conn, models.ControlMessage{Method: "subscribe", Subscription: l2BookSub("ETH")})
	require.Eventually(t, func() bool { return dialer.dialCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	sendControl(t, conn, models.ControlMessage{Method: "unsubscribe"})

	upstream := dialer.conn(0)
	require.Eventually(t, upstream.isClosed, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, upstream.methodCount("unsubscribe"))

	// The session itself stays alive.
	sendControl(t, conn, models.ControlMessage{Method: "ping"})
	env := readEnvelope(t, conn)
	assert.Equal(t, models.ChannelPong, env.Channel)
}

func TestUnsubscribeWithoutSubscriptionIsNoop(t *testing.T) {
	dialer := &fakeUpstreamDialer{}
	_, srv := newTestGateway(t, dialer)
	conn := dialClient(t, srv)

	sendControl(t, conn, models.ControlMessage{Method: "unsubscribe"})
	sendControl(t, conn, models.ControlMessage{Method: "ping"})

	env := readEnvelope(t, conn)
	assert.Equal(t, models.ChannelPong, env.Channel)
	assert.Zero(t, dialer.dialCount())
}

func TestMalformedAndUnknownMessagesIgnored(t *testing.T) {
	dialer := &fakeUpstreamDialer{}
	_, srv := newTestGateway(t, dialer)
	conn := dialClient(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	sendControl(t, conn, models.ControlMessage{Method: "reticulate"})
	sendControl(t, conn, models.ControlMessage{Method: "subscribe"}) // no subscription
	sendControl(t, conn, models.ControlMessage{Method: "ping"})

	env := readEnvelope(t, conn)
	assert.Equal(t, models.ChannelPong, env.Channel)
	assert.Zero(t, dialer.dialCount())
}

func TestSubscribeDialFailure(t *testing.T) {
	dialer := &fakeUpstreamDialer{err: errors.New("refused")}
	_, srv := newTestGateway(t, dialer)
	conn := dialClient(t, srv)

	sendControl(t, conn, models.ControlMessage{Method: "subscribe", Subscription: l2BookSub("ETH")})

	env := readEnvelope(t, conn)
	assert.Equal(t, models.ChannelStatus, env.Channel)

	var status models.StatusPayload
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Connected)
	assert.NotEmpty(t, status.Error)

	// The session survives the failed subscribe.
	sendControl(t, conn, models.ControlMessage{Method: "ping"})
	env = readEnvelope(t, conn)
	assert.Equal(t, models.ChannelPong, env.Channel)
}

func TestUpstreamOutagePushesStatus(t *testing.T) {
	dialer := &fakeUpstreamDialer{}
	_, srv := newTestGateway(t, dialer)
	conn := dialClient(t, srv)

	sendControl(t, conn, models.ControlMessage{Method: "subscribe", Subscription: l2BookSub("ETH")})
	require.Eventually(t, func() bool { return dialer.dialCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	// Feed drops the connection.
	dialer.conn(0).Close()

	env := readEnvelope(t, conn)
	require.Equal(t, models.ChannelStatus, env.Channel)

	var status models.StatusPayload
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Connected)

	// No automatic reconnect: the client decides when to resubscribe.
	sendControl(t, conn, models.ControlMessage{Method: "subscribe", Subscription: l2BookSub("ETH")})
	require.Eventually(t, func() bool { return dialer.dialCount() == 2 },
		2*time.Second, 10*time.Millisecond)
}

func TestDetachedRelayFailureIsSilent(t *testing.T) {
	dialer := &fakeUpstreamDialer{}
	gw, srv := newTestGateway(t, dialer)
	conn := dialClient(t, srv)

	sendControl(t, conn, models.ControlMessage{Method: "subscribe", Subscription: l2BookSub("ETH")})
	require.Eventually(t, func() bool { return dialer.dialCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	var sess *ClientSession
	gw.mu.Lock()
	for _, s := range gw.sessions {
		sess = s
	}
	gw.mu.Unlock()
	require.NotNil(t, sess)

	// A relay the session already replaced, dying after the handover.
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	stale, err := relay.Open(dialer, "ws://feed", *l2BookSub("BTC"), sess.forward,
		func(rs *relay.Session, cause error) { gw.relayDown(sess, rs, cause) }, logger)
	require.NoError(t, err)
	require.NoError(t, stale.Close())

	gw.relayDown(sess, stale, errors.New("read timeout"))

	// The client must not see a status push for a feed it walked away from.
	sendControl(t, conn, models.ControlMessage{Method: "ping"})
	env := readEnvelope(t, conn)
	assert.Equal(t, models.ChannelPong, env.Channel)
}

func TestClientDisconnectCascades(t *testing.T) {
	dialer := &fakeUpstreamDialer{}
	gw, srv := newTestGateway(t, dialer)
	conn := dialClient(t, srv)

	sendControl(t, conn, models.ControlMessage{Method: "subscribe", Subscription: l2BookSub("ETH")})
	require.Eventually(t, func() bool { return dialer.dialCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close()

	upstream := dialer.conn(0)
	require.Eventually(t, upstream.isClosed, 2*time.Second, 10*time.Millisecond,
		"the relay must not outlive its owning session")
	require.Eventually(t, func() bool { return gw.SessionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, upstream.methodCount("unsubscribe"))
}

func TestCloseAll(t *testing.T) {
	dialer := &fakeUpstreamDialer{}
	gw, srv := newTestGateway(t, dialer)
	dialClient(t, srv)
	conn2 := dialClient(t, srv)

	sendControl(t, conn2, models.ControlMessage{Method: "subscribe", Subscription: l2BookSub("ETH")})
	require.Eventually(t, func() bool { return dialer.dialCount() == 1 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return gw.SessionCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	gw.CloseAll()

	assert.Zero(t, gw.SessionCount())
	assert.True(t, dialer.conn(0).isClosed())
}
