// ABOUTME: Entry point for the chatline reference backend server
// ABOUTME: Serves the conversation API with SQLite persistence and an echo responder

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/chatline/internal/backend"
	"github.com/2389/chatline/internal/config"
	"github.com/2389/chatline/internal/dedupe"
	"github.com/2389/chatline/internal/logging"
	"github.com/2389/chatline/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
      _           _   _ _
  ___| |__   __ _| |_| (_)_ __   ___
 / __| '_ \ / _' | __| | | '_ \ / _ \
| (__| | | | (_| | |_| | | | | |  __/
 \___|_| |_|\__,_|\__|_|_|_| |_|\___|
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chatline-server <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the reference backend")
		fmt.Println("  health   Check backend health")
		fmt.Println("  version  Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	fmt.Println()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	seen := dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize)
	defer seen.Close()

	srv := backend.New(backend.Config{
		Store:     st,
		Responder: backend.EchoResponder{Delay: cfg.Responder.ChunkDelay},
		Seen:      seen,
		Logger:    logger,
	})

	logger.Info("starting chatline-server",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Path,
	)
	return srv.Run(ctx, cfg.Server.HTTPAddr)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
