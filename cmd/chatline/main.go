// ABOUTME: Entry point for the chatline terminal chat client
// ABOUTME: Wires config, logging, and the backend client into cobra commands

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/2389/chatline/internal/api"
	"github.com/2389/chatline/internal/config"
	"github.com/2389/chatline/internal/logging"
)

// Version is set at build time.
var version = "dev"

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	server     string
	logFile    string
	logLevel   string
}

// app is what a command needs once flags and config are resolved.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	client *api.Client
	close  func()
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "chatline",
		Short: "Chat with a streaming conversation backend from the terminal",
		Long: `chatline sends messages to a chat backend and prints the reply as it
streams in. Without a subcommand it starts an interactive session.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default $CHATLINE_CONFIG or ~/.config/chatline/config.yaml)")
	flags.StringVar(&opts.server, "server", "", "backend URL, overrides backend.url")
	flags.StringVar(&opts.logFile, "log-file", "", `log file (default <data dir>/chatline.log, "-" for stderr)`)
	flags.StringVar(&opts.logLevel, "log-level", "", "log level, overrides logging.level")

	root.AddCommand(
		newChatCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newDeleteCmd(opts),
		newClearCmd(opts),
	)
	return root
}

// setup loads configuration, applies flag overrides and opens the log.
func (o *options) setup() (*app, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.LoadOrDefault(config.Path())
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if o.server != "" {
		cfg.Backend.URL = o.server
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w, closeLog, err := openLogOutput(o.logFile)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Logging, w)
	slog.SetDefault(logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		client: api.NewClient(cfg.Backend.URL, cfg.Backend.RequestTimeout, logger),
		close:  closeLog,
	}, nil
}

// openLogOutput keeps logs out of the chat transcript by writing them to a
// file unless "-" asks for stderr.
func openLogOutput(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stderr, func() {}, nil
	}
	if path == "" {
		path = filepath.Join(config.DataDir(), "chatline.log")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
