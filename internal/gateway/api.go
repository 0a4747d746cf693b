// ABOUTME: HTTP handlers for the engine proxy, event history, and health endpoints
// ABOUTME: Maps every internal error to a fixed status/body pair at the boundary

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/2389/dock-gateway/internal/auth"
	"github.com/2389/dock-gateway/internal/engine"
	"github.com/2389/dock-gateway/internal/store"
)

// Fixed client-facing error bodies. Internal detail is only logged.
const (
	invalidRequestBody = "Invalid Request"
	internalErrorBody  = "Error Occurred Processing Request"
)

// readyTimeout bounds the engine ping behind /health/ready.
const readyTimeout = 3 * time.Second

// Handler returns the gateway's HTTP handler with all routes registered.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.Handler {
		if g.verifier == nil {
			return h
		}
		return auth.HTTPAuthMiddleware(g.verifier)(h)
	}

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	mux.Handle("GET /{$}", protect(g.handleRoot))
	mux.Handle("GET /{type}", protect(g.handleType))
	mux.Handle("GET /websocket", protect(g.handleWebSocket))
	mux.Handle("GET /api/events", protect(g.handleEventHistory))

	if g.metrics != nil {
		mux.Handle("GET "+g.config.Metrics.Path, protect(g.metrics.Handler().ServeHTTP))
	}

	return g.recoverMiddleware(mux)
}

// handleRoot handles GET /. The type query parameter is honored, else info.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	g.proxy(w, r, r.URL.Query().Get(ParamType))
}

// handleType handles GET /{type}.
func (g *Gateway) handleType(w http.ResponseWriter, r *http.Request) {
	g.proxy(w, r, r.PathValue("type"))
}

// proxy resolves typ, performs the engine call, and writes the result.
func (g *Gateway) proxy(w http.ResponseWriter, r *http.Request, typ string) {
	op, err := g.router.Resolve(typ, r.URL.Query())
	if err != nil {
		g.writeError(w, r, typ, err)
		return
	}

	// A client disconnect must not abort a call already sent to the engine;
	// the engine client applies its own timeout.
	ctx := context.WithoutCancel(r.Context())

	start := time.Now()
	resp, err := g.engine.Execute(ctx, op)
	g.metrics.ObserveEngineCall(op.Kind.String(), time.Since(start), errorKind(err))
	if err != nil {
		g.writeError(w, r, typ, err)
		return
	}

	g.logger.Debug("engine call complete",
		"type", typ,
		"operation", op.Kind.String(),
		"status", resp.StatusCode,
		"subject", auth.SubjectFromContext(r.Context()),
	)
	g.writeJSON(w, typ, resp.StatusCode, resp.Body)
}

// writeJSON writes body as JSON with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, typ string, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		g.logger.Error("encoding response", "type", typ, "error", err)
		g.writeText(w, typ, http.StatusInternalServerError, internalErrorBody)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
	g.metrics.ObserveRequest(metricType(typ), strconv.Itoa(status))
}

// writeError maps err to its fixed client-facing response.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, typ string, err error) {
	if errors.Is(err, ErrInvalidRequest) {
		g.logger.Debug("rejected request", "path", r.URL.Path, "type", typ, "error", err)
		g.writeText(w, typ, http.StatusBadRequest, invalidRequestBody)
		return
	}

	attrs := []any{"path", r.URL.Path, "type", typ, "error", err}
	if rej, ok := engine.IsRejected(err); ok {
		attrs = append(attrs, "engine_status", rej.StatusCode)
	}
	g.logger.Error("request failed", attrs...)
	g.writeText(w, typ, http.StatusInternalServerError, internalErrorBody)
}

func (g *Gateway) writeText(w http.ResponseWriter, typ string, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
	g.metrics.ObserveRequest(metricType(typ), strconv.Itoa(status))
}

// metricType keeps the request label bounded to known types.
func metricType(typ string) string {
	if typ == "" {
		return DefaultType
	}
	if _, ok := routes[typ]; ok {
		return typ
	}
	return "unknown"
}

// errorKind classifies an engine error for metrics.
func errorKind(err error) string {
	var rej *engine.RejectedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, engine.ErrUnreachable):
		return "unreachable"
	case errors.As(err, &rej):
		return "rejected"
	case errors.Is(err, engine.ErrDecode):
		return "decode"
	default:
		return "other"
	}
}

// recoverMiddleware turns a handler panic into the generic 500 response.
func (g *Gateway) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			g.logger.Error("panic handling request",
				"path", r.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(internalErrorBody))
		}()
		next.ServeHTTP(w, r)
	})
}

// StoredEventResponse is one ledger entry in GET /api/events.
type StoredEventResponse struct {
	ID         string       `json:"id"`
	ReceivedAt string       `json:"received_at"`
	Event      engine.Event `json:"event"`
}

// EventHistoryResponse is the JSON response for GET /api/events.
type EventHistoryResponse struct {
	Events []StoredEventResponse `json:"events"`
}

// handleEventHistory handles GET /api/events?limit=&since=&type=.
// since accepts RFC 3339 or Unix seconds.
func (g *Gateway) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	if g.store == nil {
		g.sendJSONError(w, http.StatusNotFound, "event ledger is disabled")
		return
	}

	params, err := parseHistoryParams(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := g.store.ListEvents(r.Context(), params)
	if err != nil {
		g.logger.Error("listing events", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	resp := EventHistoryResponse{Events: make([]StoredEventResponse, 0, len(stored))}
	for _, ev := range stored {
		resp.Events = append(resp.Events, StoredEventResponse{
			ID:         ev.ID,
			ReceivedAt: ev.ReceivedAt.Format(time.RFC3339Nano),
			Event:      ev.Event,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func parseHistoryParams(r *http.Request) (store.ListEventsParams, error) {
	q := r.URL.Query()
	params := store.ListEventsParams{Type: q.Get("type")}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > store.MaxListLimit {
			return params, errors.New("limit must be between 1 and 500")
		}
		params.Limit = limit
	}

	if v := q.Get("since"); v != "" {
		since, err := parseSince(v)
		if err != nil {
			return params, errors.New("since must be RFC 3339 or Unix seconds")
		}
		params.Since = &since
	}

	return params, nil
}

func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}

// sendJSONError writes a JSON error response for the non-proxy API routes.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the engine answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := g.engine.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("engine unreachable"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
