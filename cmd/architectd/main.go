package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/mrmohammadalamin/architect-multi-agent/internal/agent"
	"github.com/mrmohammadalamin/architect-multi-agent/internal/artifact"
	"github.com/mrmohammadalamin/architect-multi-agent/internal/config"
	"github.com/mrmohammadalamin/architect-multi-agent/internal/genai"
	"github.com/mrmohammadalamin/architect-multi-agent/internal/server"
	"github.com/mrmohammadalamin/architect-multi-agent/internal/store"
	"github.com/mrmohammadalamin/architect-multi-agent/internal/workflow"
)

func main() {
	configPath := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	artifacts, err := artifact.NewStore(cfg.ProjectStorePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open project store: %v\n", err)
		os.Exit(1)
	}

	// One daemon per project store; a second instance would race gate
	// approvals on the shared tree.
	lock := flock.New(filepath.Join(cfg.ProjectStorePath, "architectd.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to acquire store lock: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "Another architectd instance is already serving this project store")
		os.Exit(1)
	}
	defer lock.Unlock()

	runs, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer runs.Close()

	generator := genai.New(genai.Config{
		Endpoint: cfg.Generator.Endpoint,
		Model:    cfg.Generator.Model,
		APIKey:   cfg.Generator.APIKey,
		Timeout:  cfg.GeneratorTimeout(),
	})
	registry := agent.NewRegistry(generator, logger)

	manager := workflow.NewManager(
		workflow.DefaultGraph(),
		registry,
		artifacts,
		runs,
		workflow.NewEventBus(),
		logger,
		workflow.Options{
			AgentTimeout:     cfg.AgentTimeout(),
			AutoApproveGates: cfg.AutoApproveGates,
		},
	)

	srv := server.New(manager, runs, logger)
	addr := ":" + strconv.Itoa(cfg.Port)
	logger.Info("starting architect daemon", "addr", addr, "store", cfg.ProjectStorePath)
	if err := srv.Start(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
