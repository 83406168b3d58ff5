package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/stockwatch/config"
	"github.com/hazyhaar/stockwatch/history"
)

// app is the state shared by subcommands once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "stockwatch",
		Short:         "Watch the fruit stock page and alert on rare fruits.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a stockwatch.yaml file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")

	root.AddCommand(
		newRunCmd(a),
		newHistoryCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)
	return nil
}

// openStore connects the configured backend. Postgres connects lazily, so
// an unreachable server surfaces at schema setup rather than here.
func (a *app) openStore(ctx context.Context) (history.Store, error) {
	switch a.cfg.Driver() {
	case config.DriverPostgres:
		ca, err := a.cfg.MaterializeCA()
		if err != nil {
			return nil, err
		}
		return history.OpenPostgres(ctx, a.cfg.PostgresDSN(ca), a.logger)
	case config.DriverSQLite:
		return history.OpenSQLite(a.cfg.DB.SQLitePath, a.logger)
	}
	return nil, fmt.Errorf("unknown db driver %q", a.cfg.Driver())
}
