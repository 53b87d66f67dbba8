package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/elevateanalytics/star-go/internal/auth"
	"github.com/elevateanalytics/star-go/internal/config"
	"github.com/elevateanalytics/star-go/internal/rest"
	"github.com/elevateanalytics/star-go/internal/session"
	"github.com/elevateanalytics/star-go/internal/storage"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// httpClientTimeout bounds every CLI request. The gateway itself imposes no
// timeout; this is the caller-level deadline layered on top.
const httpClientTimeout = 30 * time.Second

// app bundles the resolved configuration and the wired SDK clients that
// every subcommand works through.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     session.Store
	auth      *auth.Client
	refresher *auth.Refresher
	gateway   *rest.Client
	storage   *storage.Client
}

// newApp resolves configuration and wires the client stack: file-backed
// session store, auth client, refresher (the gateway's session provider),
// REST gateway, and storage client.
func newApp() (*app, error) {
	env, err := config.ReadEnvOverrides()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Resolve(env, config.CLIOverrides{ConfigPath: flagConfigPath})
	if err != nil {
		return nil, err
	}

	logger := buildLogger(cfg)
	httpClient := &http.Client{Timeout: httpClientTimeout}

	store := session.NewFileStore(cfg.SessionPath)
	authClient := auth.NewClient(cfg.BaseURL, cfg.AnonKey, httpClient, store, logger)

	var demo session.Identity
	if cfg.Demo.Enabled {
		demo = session.Identity{Email: cfg.Demo.Email, DisplayName: cfg.Demo.DisplayName}
	}

	refresher := auth.NewRefresher(store, authClient, demo, logger)
	gateway := rest.NewClient(cfg.BaseURL, cfg.AnonKey, httpClient, refresher, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		auth:      authClient,
		refresher: refresher,
		gateway:   gateway,
		storage:   storage.NewClient(gateway, logger),
	}, nil
}

// newRootCmd builds the fully-assembled root command. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "star",
		Short:   "CLI client for the STAR caregiving backend",
		Long:    "Query tables, manage shared documents, and handle sign-in for the STAR caregiving backend.",
		Version: version,
		// Errors and usage are printed by main, not Cobra.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newSignupCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newRecoverCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newInsertCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newUpsertCmd())
	cmd.AddCommand(newDocsCmd())
	cmd.AddCommand(newPullCmd())

	return cmd
}

// buildLogger creates an slog.Logger from the config log level; --verbose
// and --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
