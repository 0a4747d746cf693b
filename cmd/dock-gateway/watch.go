// ABOUTME: watch command that subscribes to a running gateway's event feed
// ABOUTME: Prints one line per engine event until interrupted

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/fatih/color"

	"github.com/2389/dock-gateway/internal/auth"
	"github.com/2389/dock-gateway/internal/config"
	"github.com/2389/dock-gateway/internal/engine"
)

// watchTokenTTL bounds the token minted for a watch session from the local secret.
const watchTokenTTL = time.Hour

func runWatch(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	url := fs.String("url", "", "gateway websocket URL (default ws://<server.http_addr>/websocket)")
	token := fs.String("token", os.Getenv("DOCK_GATEWAY_TOKEN"), "bearer token (default: minted from auth.jwt_secret)")
	raw := fs.Bool("raw", false, "print events as raw JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	target := *url
	if target == "" {
		if cfg.Server.HTTPAddr == "" {
			return errors.New("--url is required when server.http_addr is not configured")
		}
		target = "ws://" + cfg.Server.HTTPAddr + "/websocket"
	}

	bearer := *token
	if bearer == "" && cfg.AuthEnabled() {
		bearer, err = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate("dock-gateway-watch", watchTokenTTL)
		if err != nil {
			return fmt.Errorf("generating token: %w", err)
		}
	}

	opts := &websocket.DialOptions{}
	if bearer != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + bearer}}
	}

	conn, _, err := websocket.Dial(ctx, target, opts)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", target, err)
	}
	defer conn.CloseNow()

	color.New(color.FgHiBlack).Fprintf(out, "watching %s\n", target)
	return watchLoop(ctx, conn, out, *raw)
}

// watchLoop prints events until ctx ends or the gateway closes the stream.
func watchLoop(ctx context.Context, conn *websocket.Conn, out io.Writer, raw bool) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			if status := websocket.CloseStatus(err); status != -1 {
				return fmt.Errorf("gateway closed the stream: %s", status)
			}
			return fmt.Errorf("reading event: %w", err)
		}

		if raw {
			fmt.Fprintln(out, string(data))
			continue
		}

		var ev engine.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			fmt.Fprintln(out, string(data))
			continue
		}
		fmt.Fprintln(out, formatEvent(ev))
	}
}

// formatEvent renders one event as a single human-readable line.
func formatEvent(ev engine.Event) string {
	line := fmt.Sprintf("%s %s %s %s",
		color.HiBlackString(ev.Timestamp().Local().Format("15:04:05")),
		color.CyanString(ev.Type),
		color.GreenString(ev.Action),
		ev.Actor.ID,
	)
	if name := ev.Actor.Attributes["name"]; name != "" {
		line += color.HiBlackString(" (" + name + ")")
	}
	return line
}
