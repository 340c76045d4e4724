package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"parley/internal/adapter/cli"
	"parley/internal/adapter/enrich"
	"parley/internal/adapter/llm"
	"parley/internal/infra/config"
	"parley/internal/infra/logger"
	"parley/internal/infra/tracer"
	"parley/internal/store"
	"parley/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`parley - interactive multi-provider AI chat

USAGE:
    parley [FLAGS]

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ~/.parley/config.yaml)
    --provider NAME    Override the default provider for this session
    --model NAME       Override the default model for this session
    --open ID          Open a chat by id or unique prefix on startup

CONFIGURATION:
    Config file: ~/.parley/config.yaml
    Environment: PARLEY_CONFIG overrides the config path

Inside the session, type /help for the command list.`)
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	applyFlagOverrides(cfg)

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Persistence
	st, err := store.New(cfg.Chats.Dir, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	// 4. Providers, enrichment, pipeline
	providers := llm.NewCache(cfg, log)
	enricher := enrich.New(0, log)
	console := cli.Console{}
	pipeline := usecase.NewSendPipeline(cfg, providers, enricher, log, console)

	// 5. Session & orchestrator
	session := usecase.NewSession(cfg, log, providers, st, enricher)
	orch := usecase.NewOrchestrator(session, pipeline, console)

	// 6. REPL
	repl := cli.New(orch, session, cfg.Chats.HistoryFile, log)
	defer repl.Close()

	if ref := flagValue("--open"); ref != "" {
		if _, err := orch.HandleSignal(ctx, usecase.OpenChatSignal{Ref: ref}); err != nil {
			console.Error("%v", err)
		}
	}

	log.Info("parley starting",
		"provider", session.Provider,
		"model", session.Model,
		"chats_dir", cfg.Chats.Dir,
	)

	if err := repl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// applyFlagOverrides maps session-scoped CLI flags onto the loaded config.
func applyFlagOverrides(cfg *config.Config) {
	if p := flagValue("--provider"); p != "" {
		cfg.LLM.DefaultProvider = p
	}
	if m := flagValue("--model"); m != "" {
		cfg.LLM.DefaultModel = m
	}
}

func configPath() string {
	if p := flagValue("--config"); p != "" {
		return p
	}
	if p := os.Getenv("PARLEY_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".parley", "config.yaml")
}

// flagValue extracts "--name value" or "--name=value" from os.Args.
func flagValue(name string) string {
	for i := 1; i < len(os.Args); i++ {
		if os.Args[i] == name && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(os.Args[i], name+"=") {
			return strings.TrimPrefix(os.Args[i], name+"=")
		}
	}
	return ""
}
