// Package gateway orchestrates the dock-gateway server components.
//
// # Overview
//
// The gateway package owns the HTTP server, the engine client, the
// subscriber hub, the event subscriber, and the optional event ledger.
// It wires them together in New and supervises them in Run.
//
// # HTTP API
//
//   - GET /?type=<type>   - engine operation selected by query (default info)
//   - GET /<type>         - engine operation selected by path
//   - GET /websocket      - subscribe to the live engine event feed
//   - GET /api/events     - replay persisted events (ledger only)
//   - GET /health         - liveness check
//   - GET /health/ready   - readiness check (pings the engine)
//   - GET /metrics        - Prometheus metrics (when enabled)
//
// Recognized types are images, images_history, containers,
// container_create, container_start, container_stop, info, and version.
// Unknown types and missing parameters answer 400 "Invalid Request".
// Any other failure answers 500 "Error Occurred Processing Request"; the
// detail is logged, never returned.
//
// # Event Relay
//
// The events.Subscriber keeps one streaming connection to the engine's
// event feed, reconnecting with backoff and resuming from the last event
// seen. Every event is recorded in the ledger (if configured) and
// broadcast through the hub to all WebSocket subscribers.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	err = gw.Run(ctx) // returns after graceful shutdown
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown
//   - router.go: type to engine operation mapping
//   - api.go: HTTP handlers and error mapping
//   - websocket.go: subscriber endpoint
package gateway
