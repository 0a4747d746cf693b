// ABOUTME: Tests for the WebSocket subscriber endpoint
// ABOUTME: Covers registration, delivery, disconnect cleanup, and token auth

package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dock-gateway/internal/auth"
	"github.com/2389/dock-gateway/internal/config"
	"github.com/2389/dock-gateway/internal/engine"
	"github.com/2389/dock-gateway/internal/hub"
)

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWebSocket_ReceivesBroadcasts(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), noEvents)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		c, _, err := websocket.Dial(ctx, wsURL(srv, "/websocket"), nil)
		require.NoError(t, err)
		defer c.CloseNow()
		conns[i] = c
	}
	require.Eventually(t, func() bool { return gw.hub.Len() == 3 }, time.Second, 10*time.Millisecond)

	ev := engine.Event{Type: "image", Action: "pull", Actor: engine.Actor{ID: "busybox:latest"}, Time: 1700000000}
	require.NoError(t, gw.hub.Broadcast(ev))

	for _, c := range conns {
		typ, data, err := c.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageText, typ)

		var got engine.Event
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, ev, got)
	}
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), noEvents)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, wsURL(srv, "/websocket"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return gw.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return gw.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Broadcasting with nobody left is a no-op
	assert.NoError(t, gw.hub.Broadcast(engine.Event{Type: "container", Action: "die"}))
}

func TestWebSocket_RequiresToken(t *testing.T) {
	secret := strings.Repeat("w", config.MinJWTSecretLength)
	gw := newTestGateway(t, newFakeEngine(), func(c *config.Config) {
		noEvents(c)
		c.Auth.JWTSecret = secret
	})
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(srv, "/websocket"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.NewJWTVerifier([]byte(secret)).Generate("browser", time.Hour)
	require.NoError(t, err)

	c, _, err := websocket.Dial(ctx, wsURL(srv, "/websocket?access_token="+token), nil)
	require.NoError(t, err)
	defer c.CloseNow()
	assert.Eventually(t, func() bool { return gw.hub.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), noEvents)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(srv, "/websocket"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"https://evil.example"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, gw.hub.Len())
}

func TestCloseStatus(t *testing.T) {
	assert.Equal(t, websocket.StatusPolicyViolation, closeStatus(hub.ReasonQueueFull))
	assert.Equal(t, websocket.StatusPolicyViolation, closeStatus(hub.ReasonSendFailed))
	assert.Equal(t, websocket.StatusNormalClosure, closeStatus(hub.ReasonClosed))
	assert.Equal(t, websocket.StatusGoingAway, closeStatus("server shutting down"))
}

func TestWebSocket_NonReadingPeerDoesNotStallBroadcast(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), func(c *config.Config) {
		noEvents(c)
		c.Hub.QueueSize = 2
	})
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connected but never reads, so server writes back up once buffers fill
	c, _, err := websocket.Dial(ctx, wsURL(srv, "/websocket"), nil)
	require.NoError(t, err)
	defer c.CloseNow()
	require.Eventually(t, func() bool { return gw.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	ev := engine.Event{
		Type:   "container",
		Action: "start",
		Actor:  engine.Actor{ID: "c1", Attributes: map[string]string{"blob": strings.Repeat("x", 1<<20)}},
		Time:   1700000000,
	}

	var worst time.Duration
	for i := 0; i < 40; i++ {
		start := time.Now()
		require.NoError(t, gw.hub.Broadcast(ev))
		if d := time.Since(start); d > worst {
			worst = d
		}
	}

	assert.Less(t, worst, time.Second, "broadcast waited on a slow subscriber")
	assert.Eventually(t, func() bool { return gw.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
