// ABOUTME: Tests for the HTTP API handlers and boundary error mapping
// ABOUTME: Drives the gateway handler against an httptest fake engine

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/dock-gateway/internal/auth"
	"github.com/2389/dock-gateway/internal/config"
	"github.com/2389/dock-gateway/internal/engine"
)

// fakeEngine records the requests it receives and answers from a route table.
type fakeEngine struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	calls    atomic.Int32

	routes map[string]http.HandlerFunc // keyed by "METHOD /path"
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{routes: map[string]http.HandlerFunc{
		"GET /_ping": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "OK")
		},
		"GET /info": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"Name":"engine-host","Containers":3}`)
		},
		"GET /version": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"Version":"27.0.1","ApiVersion":"1.46"}`)
		},
		"GET /images/json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `[{"Id":"sha256:abc","RepoTags":["busybox:latest"]}]`)
		},
		"GET /containers/json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `[{"Id":"c1","Names":["/web"],"State":"running"}]`)
		},
		"POST /containers/create": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"Id":"new-container","Warnings":null}`)
		},
	}}
}

func (f *fakeEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, string(body))
	h, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.Error(w, `{"message":"no such route"}`, http.StatusNotFound)
		return
	}
	h(w, r)
}

func (f *fakeEngine) set(route string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = h
}

func (f *fakeEngine) last() (*http.Request, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil, ""
	}
	return f.requests[len(f.requests)-1], f.bodies[len(f.bodies)-1]
}

func serve(gw *Gateway, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	return rec
}

func get(gw *Gateway, target string) *httptest.ResponseRecorder {
	return serve(gw, httptest.NewRequest(http.MethodGet, target, nil))
}

func noEvents(c *config.Config) { c.Events.Enabled = false }

func TestAPI_ProxiesOperations(t *testing.T) {
	fe := newFakeEngine()
	gw := newTestGateway(t, fe, noEvents)

	tests := []struct {
		target     string
		enginePath string
		wantBody   string
	}{
		{"/", "/info", `{"Name":"engine-host","Containers":3}`},
		{"/?type=version", "/version", `{"Version":"27.0.1","ApiVersion":"1.46"}`},
		{"/info", "/info", `{"Name":"engine-host","Containers":3}`},
		{"/version", "/version", `{"Version":"27.0.1","ApiVersion":"1.46"}`},
		{"/containers", "/containers/json", `[{"Id":"c1","Names":["/web"],"Image":"","ImageID":"","Command":"","Created":0,"State":"running","Status":"","Ports":null,"Labels":null}]`},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(gw, tt.target)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, rec.Body.String())

			req, _ := fe.last()
			require.NotNil(t, req)
			assert.Equal(t, tt.enginePath, req.URL.Path)
		})
	}

	req, _ := fe.last()
	assert.Equal(t, "1", req.URL.Query().Get("all"), "container list includes stopped containers")
}

func TestAPI_Images(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), noEvents)

	rec := get(gw, "/images")
	require.Equal(t, http.StatusOK, rec.Code)

	var images []engine.ImageSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &images))
	require.Len(t, images, 1)
	assert.Equal(t, []string{"busybox:latest"}, images[0].RepoTags)
}

func TestAPI_ContainerCreate_DistinctNames(t *testing.T) {
	fe := newFakeEngine()
	gw := newTestGateway(t, fe, noEvents)

	var names []string
	for i := 0; i < 2; i++ {
		rec := get(gw, "/container_create?image=busybox")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var result engine.CreateResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "new-container", result.ID)
		assert.Equal(t, []string{}, result.Warnings)

		req, body := fe.last()
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, result.Name, req.URL.Query().Get("name"))
		assert.JSONEq(t, `{"Image":"busybox"}`, body)
		names = append(names, result.Name)
	}

	assert.NotEqual(t, names[0], names[1])
}

func TestAPI_ContainerStartStop(t *testing.T) {
	fe := newFakeEngine()
	fe.set("POST /containers/af44af72b086/start", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	fe.set("POST /containers/af44af72b086/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	})
	gw := newTestGateway(t, fe, noEvents)

	rec := get(gw, "/container_start?containerId=af44af72b086")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Id":"af44af72b086","Action":"start","Changed":true}`, rec.Body.String())

	rec = get(gw, "/container_stop?containerId=af44af72b086")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"Id":"af44af72b086","Action":"stop","Changed":false}`, rec.Body.String())

	req, _ := fe.last()
	assert.Equal(t, "/containers/af44af72b086/stop", req.URL.Path, "container_stop must stop, not start")
}

func TestAPI_InvalidRequestNeverReachesEngine(t *testing.T) {
	fe := newFakeEngine()
	gw := newTestGateway(t, fe, noEvents)

	for _, target := range []string{
		"/volumes",
		"/?type=volumes",
		"/images_history",
		"/container_create",
		"/container_start",
		"/container_stop?containerId=",
	} {
		t.Run(target, func(t *testing.T) {
			rec := get(gw, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
			assert.Equal(t, "Invalid Request", rec.Body.String())
		})
	}

	assert.Equal(t, int32(0), fe.calls.Load())
}

func TestAPI_EngineErrorsAreGeneric(t *testing.T) {
	fe := newFakeEngine()
	fe.set("GET /images/busybox/json", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"secret internal detail"}`, http.StatusInternalServerError)
	})
	fe.set("GET /version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	})
	gw := newTestGateway(t, fe, noEvents)

	for _, target := range []string{"/images_history?imageId=busybox", "/images_history?imageId=missing", "/version"} {
		t.Run(target, func(t *testing.T) {
			rec := get(gw, target)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
			assert.Equal(t, "Error Occurred Processing Request", rec.Body.String())
		})
	}
}

func TestAPI_EngineUnreachable(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), noEvents)

	// Point the gateway at a server that is already gone
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	gw.engine = mustEngine(t, dead)

	rec := get(gw, "/info")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error Occurred Processing Request", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "refused")
	assert.NotContains(t, rec.Body.String(), "127.0.0.1")

	rec = get(gw, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func mustEngine(t *testing.T, srv *httptest.Server) *engine.Client {
	t.Helper()
	host, port := splitHostPort(t, srv.Listener.Addr().String())
	c, err := engine.New(engine.Config{Host: host, Port: port, Timeout: time.Second}, testLogger())
	require.NoError(t, err)
	return c
}

func TestAPI_ClientDisconnectDoesNotCancelEngineCall(t *testing.T) {
	fe := newFakeEngine()
	engineCtxErr := make(chan error, 1)
	fe.set("GET /info", func(w http.ResponseWriter, r *http.Request) {
		engineCtxErr <- r.Context().Err()
		_, _ = io.WriteString(w, `{}`)
	})
	gw := newTestGateway(t, fe, noEvents)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/info", nil).WithContext(ctx)

	rec := serve(gw, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, <-engineCtxErr)
}

func TestAPI_RecoversPanics(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), noEvents)

	h := gw.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Error Occurred Processing Request", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "kaboom")
}

func TestAPI_Health(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), noEvents)

	rec := get(gw, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = get(gw, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestAPI_Auth(t *testing.T) {
	secret := strings.Repeat("k", config.MinJWTSecretLength)
	gw := newTestGateway(t, newFakeEngine(), func(c *config.Config) {
		noEvents(c)
		c.Auth.JWTSecret = secret
	})

	rec := get(gw, "/info")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(gw, "/health")
	assert.Equal(t, http.StatusOK, rec.Code, "health stays open")
	rec = get(gw, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code, "readiness stays open")

	token, err := auth.NewJWTVerifier([]byte(secret)).Generate("ops", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(gw, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_Metrics(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), func(c *config.Config) {
		noEvents(c)
		c.Metrics.Enabled = true
	})

	require.Equal(t, http.StatusOK, get(gw, "/info").Code)
	require.Equal(t, http.StatusBadRequest, get(gw, "/nope").Code)

	rec := get(gw, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `dock_gateway_requests_total{code="200",type="info"} 1`)
	assert.Contains(t, body, `dock_gateway_requests_total{code="400",type="unknown"} 1`)
	assert.Contains(t, body, `dock_gateway_engine_call_duration_seconds_count{operation="info"} 1`)
}

func TestAPI_MetricsDisabled(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), noEvents)

	// Without the metrics route, /metrics is just an unknown type
	rec := get(gw, "/metrics")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_EventHistory(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), func(c *config.Config) {
		noEvents(c)
		c.Database.Path = filepath.Join(t.TempDir(), "events.db")
	})
	ctx := context.Background()

	base := time.Unix(1700000000, 0)
	for i, typ := range []string{"container", "image", "container"} {
		require.NoError(t, gw.store.SaveEvent(ctx, engine.Event{
			Type:     typ,
			Action:   "act",
			Actor:    engine.Actor{ID: "x"},
			TimeNano: base.Add(time.Duration(i) * time.Second).UnixNano(),
		}))
	}

	decode := func(rec *httptest.ResponseRecorder) EventHistoryResponse {
		t.Helper()
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp EventHistoryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := decode(get(gw, "/api/events"))
	assert.Len(t, resp.Events, 3)
	assert.NotEmpty(t, resp.Events[0].ID)
	assert.NotEmpty(t, resp.Events[0].ReceivedAt)

	resp = decode(get(gw, "/api/events?type=image"))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "image", resp.Events[0].Event.Type)

	resp = decode(get(gw, "/api/events?since=1700000001"))
	assert.Len(t, resp.Events, 2)

	resp = decode(get(gw, "/api/events?limit=1"))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, base.Add(2*time.Second).UnixNano(), resp.Events[0].Event.TimeNano)

	for _, target := range []string{"/api/events?limit=0", "/api/events?limit=abc", "/api/events?since=yesterday"} {
		rec := get(gw, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestAPI_EventHistoryDisabled(t *testing.T) {
	gw := newTestGateway(t, newFakeEngine(), noEvents)

	rec := get(gw, "/api/events")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"event ledger is disabled"}`, rec.Body.String())
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", errorKind(nil))
	assert.Equal(t, "unreachable", errorKind(engine.ErrUnreachable))
	assert.Equal(t, "rejected", errorKind(&engine.RejectedError{StatusCode: 404}))
	assert.Equal(t, "decode", errorKind(engine.ErrDecode))
	assert.Equal(t, "other", errorKind(context.Canceled))
}
