// ABOUTME: Gateway orchestrator that wires the engine client, event relay, and HTTP server
// ABOUTME: Manages listeners (TCP or Tailscale), the ledger store, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/dock-gateway/internal/auth"
	"github.com/2389/dock-gateway/internal/config"
	"github.com/2389/dock-gateway/internal/engine"
	"github.com/2389/dock-gateway/internal/events"
	"github.com/2389/dock-gateway/internal/hub"
	"github.com/2389/dock-gateway/internal/metrics"
	"github.com/2389/dock-gateway/internal/store"
)

// shutdownTimeout bounds graceful shutdown once Run's context is done.
const shutdownTimeout = 5 * time.Second

// Engine is the subset of the engine client the gateway uses.
type Engine interface {
	Execute(ctx context.Context, op engine.Operation) (*engine.Response, error)
	Ping(ctx context.Context) error
	events.Source
}

// Gateway orchestrates the dock-gateway server components.
type Gateway struct {
	config      *config.Config
	engine      Engine
	router      *Router
	hub         *hub.Hub
	subscriber  *events.Subscriber // nil when events.enabled is false
	store       store.Store        // nil when the ledger is disabled
	metrics     *metrics.Metrics   // nil when metrics.enabled is false
	verifier    *auth.JWTVerifier  // nil when auth is disabled
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New creates a Gateway from cfg, connecting to the engine it names.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := engine.New(engine.Config{
		Socket:     cfg.Engine.Socket,
		Host:       cfg.Engine.Host,
		Port:       cfg.Engine.Port,
		APIVersion: cfg.Engine.APIVersion,
		Timeout:    cfg.Engine.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating engine client: %w", err)
	}
	logger.Info("engine client configured", "endpoint", client.Endpoint())

	return newGateway(cfg, client, logger)
}

// newGateway wires every component around an already constructed engine.
func newGateway(cfg *config.Config, eng Engine, logger *slog.Logger) (*Gateway, error) {
	gw := &Gateway{
		config: cfg,
		engine: eng,
		router: NewRouter(),
		logger: logger.With("component", "gateway"),
	}

	if cfg.Metrics.Enabled {
		gw.metrics = metrics.New()
	}

	if cfg.LedgerEnabled() {
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		gw.store = s
	}

	if cfg.AuthEnabled() {
		gw.verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		gw.logger.Warn("auth disabled - no jwt_secret configured")
	}

	gw.hub = hub.New(hub.Config{
		QueueSize:   cfg.Hub.QueueSize,
		SendTimeout: cfg.Hub.SendTimeout,
		Logger:      logger,
		Metrics:     gw.metrics,
	})

	if cfg.Events.Enabled {
		subCfg := events.Config{
			Source: eng,
			Sink:   gw.hub,
			Backoff: events.BackoffConfig{
				Initial:    cfg.Events.InitialBackoff,
				Max:        cfg.Events.MaxBackoff,
				Multiplier: cfg.Events.BackoffMultiplier,
				Jitter:     cfg.Events.Jitter,
			},
			DedupeTTL:  cfg.Events.DedupeTTL,
			DedupeSize: cfg.Events.DedupeSize,
			Logger:     logger,
			Metrics:    gw.metrics,
		}
		if gw.store != nil {
			subCfg.Recorder = gw.store
		}
		sub, err := events.NewSubscriber(subCfg)
		if err != nil {
			gw.closeStore()
			return nil, fmt.Errorf("creating event subscriber: %w", err)
		}
		gw.subscriber = sub
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Run starts the HTTP server, the event subscriber, and ledger pruning, and
// blocks until ctx is canceled or the server fails.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	defer func() {
		if err := g.Close(); err != nil {
			g.logger.Error("closing gateway", "error", err)
		}
	}()

	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	g.logger.Info("serving engine operations", "types", Types())

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if g.subscriber != nil {
		eg.Go(func() error {
			_ = g.subscriber.Run(egCtx)
			return nil
		})
	} else {
		g.logger.Info("engine event relay disabled")
	}

	if g.store != nil && g.config.Database.Retention > 0 {
		eg.Go(func() error {
			g.pruneLoop(egCtx)
			return nil
		})
	}

	eg.Go(func() error {
		<-egCtx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	return eg.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "dock-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and listens on :80 there.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// pruneInterval is how often expired ledger rows are deleted.
const pruneInterval = time.Hour

// pruneLoop deletes ledger events older than the retention window.
func (g *Gateway) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		g.pruneOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (g *Gateway) pruneOnce(ctx context.Context) {
	cutoff := time.Now().Add(-g.config.Database.Retention)
	n, err := g.store.PruneEvents(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			g.logger.Error("pruning event ledger", "error", err)
		}
		return
	}
	if n > 0 {
		g.logger.Info("pruned event ledger", "deleted", n, "cutoff", cutoff)
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests and disconnects every WebSocket subscriber.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	// Hijacked WebSocket connections are not tracked by the HTTP server
	g.hub.Close()

	return errors.Join(errs...)
}

// Close releases the tailnet node and the ledger. Safe to call more than once.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		var errs []error
		if g.tsnetServer != nil {
			errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
		}
		errs = appendCloseError(errs, "store close", g.closeStore())
		g.closeErr = errors.Join(errs...)
	})
	return g.closeErr
}

func (g *Gateway) closeStore() error {
	if g.store == nil {
		return nil
	}
	return g.store.Close()
}
