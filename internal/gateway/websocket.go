// ABOUTME: WebSocket endpoint that registers each connection as a hub subscriber
// ABOUTME: Adapts coder/websocket connections to the hub.Conn interface

package gateway

import (
	"context"
	"net/http"

	"github.com/coder/websocket"

	"github.com/2389/dock-gateway/internal/auth"
	"github.com/2389/dock-gateway/internal/hub"
)

// wsConn adapts a websocket connection to hub.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close(reason string) error {
	return c.conn.Close(closeStatus(reason), reason)
}

// closeStatus maps a hub drop reason to a WebSocket close code.
func closeStatus(reason string) websocket.StatusCode {
	switch reason {
	case hub.ReasonQueueFull, hub.ReasonSendFailed:
		return websocket.StatusPolicyViolation
	case hub.ReasonClosed:
		return websocket.StatusNormalClosure
	default:
		return websocket.StatusGoingAway
	}
}

// handleWebSocket handles GET /websocket. The connection is write-only from
// the server's side; it stays registered until the peer goes away or the hub
// drops it.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.config.Hub.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the error response
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	// CloseRead discards inbound messages and cancels ctx when the peer closes
	ctx := conn.CloseRead(context.WithoutCancel(r.Context()))

	sub, err := g.hub.Register(&wsConn{conn: conn})
	if err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	g.logger.Info("websocket subscriber connected",
		"sub_id", sub.ID(),
		"remote_addr", r.RemoteAddr,
		"subject", auth.SubjectFromContext(r.Context()),
	)

	select {
	case <-ctx.Done():
		g.hub.Unregister(sub.ID())
		g.logger.Info("websocket subscriber disconnected", "sub_id", sub.ID())
	case <-sub.Done():
		g.logger.Info("websocket subscriber dropped", "sub_id", sub.ID(), "reason", sub.Reason())
	}
}
