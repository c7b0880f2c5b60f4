// Command tronrund runs the session-event runtime as a standalone JSON-RPC
// server: load config and credentials, wire the event store, provider
// registry, guardrail/hook engines, and RPC method registry, then serve
// websocket connections until the process is signaled to stop (§4.8/§9).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/tronrun/internal/agent"
	"github.com/xonecas/tronrun/internal/config"
	"github.com/xonecas/tronrun/internal/eventbus"
	"github.com/xonecas/tronrun/internal/eventstore"
	"github.com/xonecas/tronrun/internal/guardrails"
	"github.com/xonecas/tronrun/internal/hooks"
	"github.com/xonecas/tronrun/internal/provider"
	"github.com/xonecas/tronrun/internal/rpcserver"
	"github.com/xonecas/tronrun/internal/turn"
)

func main() {
	flagConfig := flag.String("config", "", "path to config.toml (default: <data dir>/config.toml, then ./config.toml)")
	flag.Parse()

	if err := setupFileLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to set up file logging: %v\n", err)
	}

	cfg, err := loadConfig(*flagConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("tronrund: load config")
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		log.Fatal().Err(err).Msg("tronrund: load credentials")
	}

	dbPath, err := cfg.Storage.PathOrDefault()
	if err != nil {
		log.Fatal().Err(err).Msg("tronrund: resolve storage path")
	}
	store, err := eventstore.Open(dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("tronrund: open event store")
	}

	hub := eventbus.New(0)

	providers := provider.NewRegistryFromCredentials(providerCredentials(creds))
	if len(providers.List()) == 0 {
		log.Warn().Msg("tronrund: no provider credentials configured; agent.prompt will fail until one is added")
	}

	ge := guardrails.NewEngine(guardrails.DefaultShellGuardrails()...)
	he := hooks.NewEngine()
	he.SetDefaultTimeout(time.Duration(cfg.Hooks.TimeoutOrDefault()) * time.Second)

	turns := turn.NewRunner(store, hub)
	runner := agent.NewRunner(store, turns, hub)

	runtime := rpcserver.NewRuntime(store, hub, providers, runner, ge, he)
	registry := rpcserver.NewRegistry()
	rpcserver.RegisterMethods(registry, runtime)

	server := rpcserver.New(hub, registry)

	addr := cfg.Server.ListenAddrOrDefault()
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("tronrund: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("tronrund: serve")
		}
	}()

	waitForShutdown(httpServer)
}

func loadConfig(flagPath string) (*config.Config, error) {
	if flagPath != "" {
		return config.Load(flagPath)
	}

	if dataDir, err := config.DataDir(); err == nil {
		dataDirPath := filepath.Join(dataDir, "config.toml")
		if _, err := os.Stat(dataDirPath); err == nil {
			return config.Load(dataDirPath)
		}
	}

	return config.Load(filepath.Join(".", "config.toml"))
}

func providerCredentials(creds *config.Credentials) provider.Credentials {
	return provider.Credentials{
		AnthropicAPIKey: creds.GetAPIKey("anthropic"),
		CodexAPIKey:     creds.GetAPIKey("codex"),
		GeminiAPIKey:    creds.GetAPIKey("gemini"),
	}
}

func waitForShutdown(httpServer *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("tronrund: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("tronrund: graceful shutdown failed")
	}
}

func setupFileLogging() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	dataDir, err := config.EnsureDataDir()
	if err != nil {
		return err
	}

	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return err
	}

	logFile := filepath.Join(logDir, "tronrund.log")
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	log.Logger = log.Output(file)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	return nil
}
