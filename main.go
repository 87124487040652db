// Command tiltroom starts the tilt-maze room relay.
//
// It supports two modes:
//  1. "server" (default) runs the HTTP server with the WebSocket gateway, the
//     read-only REST API, an /mcp endpoint and optional static client files
//  2. "mcp" runs an MCP stdio server and spins up an internal relay if no
//     server answers on the configured port
//
// Settings come from flags, TILTROOM_* environment variables, a .env file
// and an optional tiltroom.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/tiltroom/api"
	"github.com/wricardo/tiltroom/game/config"
	"github.com/wricardo/tiltroom/game/room"
	"github.com/wricardo/tiltroom/game/sensor"
	"github.com/wricardo/tiltroom/game/service"
	"github.com/wricardo/tiltroom/transport/mcp"
	"github.com/wricardo/tiltroom/transport/pubsub"
	"github.com/wricardo/tiltroom/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Tiltroom Relay"
)

// flagKeys maps command line flags to config keys
var flagKeys = map[string]string{
	"host":            "host",
	"port":            "port",
	"static-dir":      "static_dir",
	"max-players":     "max_players",
	"aggregate-scope": "aggregate_scope",
	"sweep-interval":  "sweep_interval",
	"nats-url":        "nats_url",
	"cors-origin":     "cors_origins",
	"debug":           "debug",
	"log-format":      "log_format",
	"ngrok":           "ngrok.enabled",
	"ngrok-domain":    "ngrok.domain",
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("error loading .env file")
	}

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("tiltroom exited")
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "tiltroom",
		Usage:   "room relay for the multiplayer tilt-maze game",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file (default ./tiltroom.yaml when present)"},
			&cli.StringFlag{Name: "host", Usage: "HTTP listen host"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP listen port (env PORT)"},
			&cli.StringFlag{Name: "static-dir", Usage: "serve the game client from this directory"},
			&cli.IntFlag{Name: "max-players", Usage: "seats per room"},
			&cli.StringFlag{Name: "aggregate-scope", Usage: "sensor averaging scope: global or room"},
			&cli.DurationFlag{Name: "sweep-interval", Usage: "how often empty rooms and stale samples are removed (0 disables)"},
			&cli.StringFlag{Name: "nats-url", Usage: "deliver broadcasts over NATS instead of in process"},
			&cli.StringSliceFlag{Name: "cors-origin", Usage: "allowed browser origin (repeatable, default all)"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.StringFlag{Name: "log-format", Usage: "json or console"},
			&cli.BoolFlag{Name: "ngrok", Usage: "expose the server through an ngrok tunnel"},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runHTTPServer(ctx, cfg)
		},
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "run the HTTP server with WebSocket, REST API and MCP endpoint",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return runHTTPServer(ctx, cfg)
				},
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "run an MCP stdio server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return runStdioMCP(ctx, cfg)
				},
			},
		},
	}
}

// loadConfig resolves config with explicitly set flags on top
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"), flagOverrides(cmd))
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)

	log.Info().
		Str("version", Version).
		Str("config", cfg.File).
		Msg("starting " + AppName)
	return cfg, nil
}

func flagOverrides(cmd *cli.Command) map[string]any {
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.Value(flag)
		}
	}
	return overrides
}

func setupLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.Debug || cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// relay is the wired server stack
type relay struct {
	bus      pubsub.Bus
	registry *websocket.Registry
	store    *room.Store
	sensors  *sensor.Aggregator
	service  service.RelayService
	hub      *websocket.Hub
	janitor  *service.Janitor
}

// newRelay wires bus, rooms, sensors, the protocol handler and the hub
func newRelay(cfg *config.Config) (*relay, error) {
	var bus pubsub.Bus = pubsub.NewMemoryBus()
	if cfg.NATSURL != "" {
		nb, err := pubsub.ConnectNATS(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		bus = nb
	}

	registry := websocket.NewRegistry()
	router := websocket.NewRouter(bus, registry, cfg.SubjectPrefix)
	store := room.NewStore(room.WithMaxPlayers(cfg.MaxPlayers))
	sensors := sensor.NewAggregator(cfg.Scope())

	relayService := service.NewRelayService(store, sensors, router, service.WithStateRecorder(registry))

	hub := websocket.NewHub(websocket.Config{
		ReadLimit:   cfg.ReadLimit,
		WriteWait:   cfg.WriteWait,
		PongWait:    cfg.PongWait,
		CheckOrigin: originChecker(cfg.CORSOrigins),
	}, router, relayService)

	janitor := service.NewJanitor(store, sensors, registry.Alive, cfg.SweepInterval,
		service.WithScheduler(func(fn func()) {
			if !hub.Submit(fn) {
				log.Debug().Str("module", "main").Msg("sweep skipped, hub stopped")
			}
		}))

	return &relay{
		bus:      bus,
		registry: registry,
		store:    store,
		sensors:  sensors,
		service:  relayService,
		hub:      hub,
		janitor:  janitor,
	}, nil
}

// start runs the hub and janitor until ctx is done
func (r *relay) start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		r.janitor.Run(ctx)
	}()
}

func (r *relay) handler(cfg *config.Config, mcpBaseURL string) http.Handler {
	return api.NewServer(r.service, r.hub, api.Options{
		StaticDir:   cfg.StaticDir,
		CORSOrigins: cfg.CORSOrigins,
		MCP:         mcp.NewClient(mcpBaseURL),
	})
}

func (r *relay) close() {
	if err := r.bus.Close(); err != nil {
		log.Warn().Str("module", "main").Err(err).Msg("bus close failed")
	}
}

// originChecker allows requests without an Origin header or from a listed
// origin. An empty list allows every origin.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

// localBaseURL is the loopback URL the MCP tools call back on
func localBaseURL(cfg *config.Config) string {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// runHTTPServer serves the relay until SIGINT or SIGTERM. If ngrok is
// enabled it also provisions a public tunnel.
func runHTTPServer(ctx context.Context, cfg *config.Config) error {
	r, err := newRelay(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize relay: %w", err)
	}
	defer r.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	r.start(runCtx, &wg)

	handler := r.handler(cfg, localBaseURL(cfg))
	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("websocket", "/ws").
			Str("mcp", "/mcp").
			Str("static", cfg.StaticDir).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if cfg.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(runCtx, cfg.Ngrok, handler)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	cancel()
	wg.Wait()
	log.Info().Msg("server stopped")
	return nil
}

func runNgrok(ctx context.Context, cfg config.NgrokConfig, handler http.Handler) {
	if cfg.AuthToken == "" {
		log.Warn().Str("module", "ngrok").Msg("ngrok enabled but no auth token provided (use NGROK_AUTHTOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		log.Error().Str("module", "ngrok").Err(err).Msg("failed to start ngrok tunnel")
		return
	}
	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Warn().Str("module", "ngrok").Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	log.Info().Str("module", "ngrok").Str("url", tun.URL()).Msg("ngrok tunnel established")

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Error().Str("module", "ngrok").Err(err).Msg("ngrok server error")
	}
	log.Info().Str("module", "ngrok").Msg("ngrok tunnel closed")
}

// runStdioMCP runs an MCP stdio server. It reuses a relay already listening
// on the configured port; otherwise it starts an internal one on a random
// loopback port and points the tools at that.
func runStdioMCP(ctx context.Context, cfg *config.Config) error {
	baseURL := localBaseURL(cfg)

	probe := &http.Client{Timeout: 2 * time.Second}
	resp, err := probe.Get(baseURL + "/health")
	if err == nil {
		resp.Body.Close()
	}
	if err == nil && resp.StatusCode < 500 {
		log.Info().Str("url", baseURL).Msg("external relay found, using it for MCP")
	} else {
		log.Info().Msg("no external relay found, starting internal HTTP server")

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = "http://" + listener.Addr().String()

		r, err := newRelay(cfg)
		if err != nil {
			listener.Close()
			return fmt.Errorf("failed to initialize relay: %w", err)
		}
		defer r.close()

		runCtx, cancel := context.WithCancel(ctx)
		var wg sync.WaitGroup
		r.start(runCtx, &wg)
		defer func() {
			cancel()
			wg.Wait()
		}()

		httpServer := &http.Server{Handler: r.handler(cfg, baseURL)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("internal HTTP server error")
			}
		}()
		defer httpServer.Close()
	}

	log.Info().Str("api", baseURL).Msg("MCP stdio server ready")
	if err := server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
