package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skyplanner/skyplanner/internal/anthropic"
	"github.com/skyplanner/skyplanner/internal/config"
	"github.com/skyplanner/skyplanner/internal/resilience"
	"github.com/skyplanner/skyplanner/internal/server"
	"github.com/skyplanner/skyplanner/internal/session"
	"github.com/skyplanner/skyplanner/internal/tools"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config.yaml")
	showVersion := flag.Bool("version", false, "Print version and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *showVersion {
		fmt.Println("skyplanner", version)
		os.Exit(0)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	logger := log.Logger

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	store, err := buildStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize session store")
	}

	breaker := resilience.NewCircuitBreaker(
		cfg.CircuitBreaker.MaxFailures,
		time.Duration(cfg.CircuitBreaker.ResetTimeoutSec)*time.Second,
	)
	gateway, err := anthropic.New(cfg.Anthropic.APIKey, cfg.Anthropic.Model,
		anthropic.WithMaxTokens(cfg.Anthropic.MaxTokens),
		anthropic.WithCircuitBreaker(breaker),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create model client")
	}

	// Titles use a smaller model and no circuit breaker; a title failure
	// falls back to truncation anyway.
	titleGateway, err := anthropic.New(cfg.Anthropic.APIKey, cfg.Anthropic.TitleModel,
		anthropic.WithMaxTokens(100),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create title client")
	}

	registry := tools.BuildRegistry(cfg.Tools)

	srv := server.New(cfg, version, logger, server.Deps{
		Store:    store,
		Gateway:  gateway,
		Registry: registry,
		Titles:   session.NewTitleGenerator(titleGateway),
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("shutdown error")
	}

	logger.Info().Msg("server stopped")
}

func buildStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return session.NewMemoryStore(), nil
	case "dynamodb":
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return session.NewDynamoStore(ctx, session.DynamoOptions{
			EndpointURL:     cfg.Storage.DynamoDB.EndpointURL,
			TableName:       cfg.Storage.DynamoDB.TableName,
			Region:          cfg.Storage.DynamoDB.Region,
			AccessKeyID:     cfg.Storage.DynamoDB.AccessKeyID,
			SecretAccessKey: cfg.Storage.DynamoDB.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
