// Command orderd runs the reference commerce backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codewandler/orderrt-go/commerce"
	"github.com/codewandler/orderrt-go/internal/config"
	"github.com/codewandler/orderrt-go/internal/telemetry"
)

func main() {
	var (
		configPath = ""
		envFile    = ".env"
	)
	flag.StringVar(&configPath, "config", configPath, "path to a YAML config file")
	flag.StringVar(&envFile, "env", envFile, "path to an env file")
	flag.Parse()

	if err := run(configPath, envFile); err != nil {
		fmt.Fprintln(os.Stderr, "orderd:", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}
	if cfg.OpenAI.APIKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}

	level, _ := config.ParseLevel(cfg.Telemetry.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics http.Handler
	if cfg.Telemetry.Metrics {
		p, err := telemetry.Setup(ctx, "orderd", logger)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer p.Shutdown(context.Background())
		metrics = p.Handler()
	}

	carts, err := openCarts(ctx, cfg.CartStore)
	if err != nil {
		return err
	}
	defer carts.Close()

	service := commerce.NewService(commerce.Catalog(commerce.Menu), carts, logger.With(slog.String("component", "service")))
	minter := commerce.NewKeyMinter(cfg.OpenAI.APIKey,
		commerce.WithModel(cfg.OpenAI.Model),
		commerce.WithVoice(cfg.OpenAI.Voice),
		commerce.WithClientSecretsURL(cfg.OpenAI.ClientSecretsURL),
		commerce.WithLogger(logger.With(slog.String("component", "minter"))),
	)
	server := commerce.NewServer(service, minter, commerce.ServerConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     metrics,
		Logger:      logger.With(slog.String("component", "http")),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr), slog.String("cart_store", cfg.CartStore.Driver))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openCarts(ctx context.Context, cfg config.CartStoreConfig) (commerce.Carts, error) {
	switch cfg.Driver {
	case "sqlite":
		carts, err := commerce.OpenSQLiteCarts(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("cart store: %w", err)
		}
		return carts, nil
	case "redis":
		ttl := time.Duration(cfg.TTLMinutes) * time.Minute
		carts, err := commerce.NewRedisCarts(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, ttl)
		if err != nil {
			return nil, fmt.Errorf("cart store: %w", err)
		}
		return carts, nil
	}
	return commerce.NewMemoryCarts(), nil
}
