package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/taxidocs/waybill-server/internal/bot"
	"github.com/taxidocs/waybill-server/internal/config"
	"github.com/taxidocs/waybill-server/internal/form"
	"github.com/taxidocs/waybill-server/internal/mcp"
	"github.com/taxidocs/waybill-server/internal/render"
	"github.com/taxidocs/waybill-server/internal/session"
	"github.com/taxidocs/waybill-server/internal/templates"
	"github.com/taxidocs/waybill-server/internal/waybill"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging builds the process logger. In MCP mode everything goes to
// stderr so stdout stays clean for the protocol.
func setupLogging(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func newTemplateResolver(cfg *config.Config, log *slog.Logger) (templates.Resolver, error) {
	switch cfg.TemplateBackend {
	case config.BackendS3:
		return templates.NewS3Resolver(templates.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			UseSSL:    cfg.S3UseSSL,
			MaxSize:   cfg.MaxTemplateSize,
		}, log)
	default:
		resolver := templates.NewDirResolver(cfg.TemplatesDir)
		resolver.SetMaxSize(cfg.MaxTemplateSize)
		return resolver, nil
	}
}

func newService(cfg *config.Config, resolver templates.Resolver, log *slog.Logger) *waybill.Service {
	var rasterizer render.Rasterizer
	if tool, err := render.DetectRasterizer(log); err != nil {
		log.Warn("no rasterization backend found; generation will be unavailable",
			"error", err)
	} else {
		rasterizer = tool
	}
	flattener := render.NewFlattener(rasterizer != nil, log)
	renderer := render.NewRenderer(rasterizer, log)

	return waybill.NewService(resolver, flattener, renderer, waybill.Options{
		Presentation: form.Presentation{
			FontName:      cfg.FontName,
			DefaultSize:   cfg.FontSize,
			SizeOverrides: cfg.FieldFontSizes,
		},
		Location: cfg.Location(),
		DPI:      cfg.DPI,
		TempDir:  cfg.OutputDir,
	}, log)
}

// runWebhookMode serves the Telegram webhook until a shutdown signal.
func runWebhookMode(ctx context.Context, cfg *config.Config, svc *waybill.Service, resolver templates.Resolver, log *slog.Logger) error {
	sessions, err := session.Open(cfg.SessionDBPath)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer sessions.Close()

	client := bot.NewClient(cfg.BotToken, log)
	handler := bot.NewHandler(svc, client, resolver, sessions, log)
	router := bot.NewRouter(handler, cfg.WebhookSecret, log)

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serverErrCh := make(chan error, 1)
	go func() {
		log.Info("webhook server listening", "addr", cfg.Address())
		serverErrCh <- srv.ListenAndServe()
	}()

	select {
	case sig := <-signalCh:
		log.Info("received signal, shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	log.Info("server stopped")
	return nil
}

// runMCPMode serves MCP tools over standard I/O; the parent process
// controls the lifecycle.
func runMCPMode(ctx context.Context, cfg *config.Config, svc *waybill.Service, resolver templates.Resolver) error {
	server, err := mcp.NewServer(cfg, svc, resolver)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := setupLogging(cfg)

	if version != "dev" {
		cfg.Version = version
	}

	if cfg.IsDebug() {
		log.Debug("starting", "config", cfg.String())
	}

	resolver, err := newTemplateResolver(cfg, log)
	if err != nil {
		log.Error("failed to create template resolver", "error", err)
		os.Exit(1)
	}
	svc := newService(cfg, resolver, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IsWebhookMode() {
		err = runWebhookMode(ctx, cfg, svc, resolver, log)
	} else {
		err = runMCPMode(ctx, cfg, svc, resolver)
	}
	if err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Waybill Server\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
