// Command backend is the main entrypoint for the lap-trend API and background workers.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts background jobs: race history sync, upstream token refresher
//     and, when configured, the Twitch chat bot.
//   - Exposes the HTTP server with trend data, rendered charts, health and metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"github.com/onnwee/lap-trend/backend/chat"
	"github.com/onnwee/lap-trend/backend/config"
	"github.com/onnwee/lap-trend/backend/crypto"
	"github.com/onnwee/lap-trend/backend/db"
	"github.com/onnwee/lap-trend/backend/history"
	"github.com/onnwee/lap-trend/backend/iracing"
	"github.com/onnwee/lap-trend/backend/oauth"
	"github.com/onnwee/lap-trend/backend/server"
	"github.com/onnwee/lap-trend/backend/telemetry"
	"github.com/onnwee/lap-trend/backend/trend"
)

const tokenProvider = "iracing"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		ServiceName:    "lap-trend",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTLPEndpoint,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	database, err := db.Connect(connectCtx, cfg.DBDsn)
	cancel()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	var sealer crypto.Sealer
	if cfg.EncryptionKey != "" {
		s, err := crypto.NewAESSealer(cfg.EncryptionKey)
		if err != nil {
			slog.Error("invalid ENCRYPTION_KEY", slog.Any("err", err))
			os.Exit(1)
		}
		sealer = s
	} else {
		slog.Warn("ENCRYPTION_KEY not set - oauth tokens are stored in plaintext", slog.String("component", "crypto"))
	}
	store := db.NewStore(database, sealer)

	client := &iracing.Client{BaseURL: cfg.IRacingBaseURL, Timeout: cfg.IRacingTimeout}
	var tokens *iracing.TokenSource
	if err := cfg.ValidateUpstreamReady(); err != nil {
		slog.Warn("upstream api disabled", slog.Any("err", err), slog.String("component", "iracing"))
	} else {
		tokens = newTokenSource(ctx, cfg, store)
		client.Tokens = tokens
	}

	engine := trend.NewEngine(store, client)
	charts := server.NewChartStore(cfg.PublicBaseURL, cfg.ChartTTL, nil)
	charts.StartSweeper(ctx, time.Minute)
	syncer := &history.Syncer{Source: client, Store: store}

	if tokens != nil {
		go history.StartHistorySyncJob(ctx, syncer, cfg.HistorySyncInterval)
		oauth.StartRefresher(ctx, store, tokenProvider, 5*time.Minute, cfg.TokenRefreshWindow, tokens.Refresh)
	}

	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("chat bot disabled", slog.Any("err", err), slog.String("component", "chat"))
	} else {
		bot := &chat.Bot{
			Engine:   engine,
			Links:    store,
			Charts:   charts,
			Members:  client,
			Syncer:   syncer,
			Cooldown: cfg.ChatCooldown,
		}
		go func() {
			if err := bot.Run(ctx, cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchChannels); err != nil {
				slog.Error("chat bot exited", slog.Any("err", err), slog.String("component", "chat"))
			}
		}()
	}

	startPprof()

	handlers := server.NewHandlers(engine, store, store, client, charts)
	mux := server.NewMux(ctx, handlers, server.Options{
		AdminToken:        cfg.AdminToken,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		CORSOrigins:       cfg.CORSOrigins,
	})
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, mux); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

// newTokenSource seeds the token cache from the database and persists every
// newly issued token back to it.
func newTokenSource(ctx context.Context, cfg *config.Config, store *db.Store) *iracing.TokenSource {
	ts := &iracing.TokenSource{
		ClientID:     cfg.IRacingClientID,
		ClientSecret: cfg.IRacingClientSecret,
		TokenURL:     cfg.IRacingTokenURL,
		Username:     cfg.IRacingUsername,
		Password:     cfg.IRacingPassword,
		OnToken: func(ctx context.Context, tok *oauth2.Token) {
			if err := store.UpsertOAuthToken(ctx, tokenProvider, tok); err != nil {
				slog.Warn("persist upstream token failed", slog.Any("err", err), slog.String("component", "iracing"))
			}
		},
	}
	tok, err := store.GetOAuthToken(ctx, tokenProvider)
	switch {
	case err != nil:
		slog.Warn("load stored upstream token failed", slog.Any("err", err), slog.String("component", "iracing"))
	case tok != nil:
		ts.Seed(tok)
	}
	return ts
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

// startPprof exposes profiling endpoints when ENABLE_PPROF=1.
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	addr := os.Getenv("PPROF_ADDR")
	if addr == "" {
		addr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", addr))
		srv := &http.Server{
			Addr:              addr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
