package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/stockwatch/config"
	"github.com/hazyhaar/stockwatch/notify"
	"github.com/hazyhaar/stockwatch/pipeline"
	"github.com/hazyhaar/stockwatch/render"
	"github.com/hazyhaar/stockwatch/stock"
	"github.com/hazyhaar/stockwatch/telemetry"
)

const flushTimeout = 5 * time.Second

func newRunCmd(a *app) *cobra.Command {
	var unattended bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check the stock once: render, extract, persist, alert.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("unattended") {
				a.cfg.Run.Unattended = unattended
			}
			return a.run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&unattended, "unattended", false, "apply the randomized start delay (overrides run.unattended)")
	return cmd
}

func (a *app) run(ctx context.Context) error {
	cfg := a.cfg
	log := a.logger

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return err
	}
	defer func() {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		if err := shutdown(fctx); err != nil {
			log.Warn("stockwatch: trace flush failed", "error", err)
		}
	}()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	highTiers, err := cfg.HighTiers()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	runner := pipeline.New(pipeline.Config{
		URL:        cfg.Target.URL,
		Unattended: cfg.Run.Unattended,
		DelayMin:   cfg.Run.DelayMin,
		DelayMax:   cfg.Run.DelayMax,
		Logger:     log,
		Metrics:    pipeline.NewMetrics(reg, cfg.Metrics.Namespace),
	},
		render.New(renderConfig(cfg, a)),
		stock.NewClassifier(highTiers, cfg.Alerts.Targets),
		store,
		newNotifier(cfg, a),
	)

	rep := runner.Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Metrics.Textfile, reg); err != nil {
			log.Warn("stockwatch: metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	attrs := []any{
		"outcome", rep.Outcome.String(),
		"duration", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond).String(),
	}
	if rep.Outcome != pipeline.Succeeded {
		attrs = append(attrs, "error", rep.Err, "render_timeout", pipeline.IsRenderTimeout(rep))
		log.Error("stockwatch: run failed", attrs...)
		return &exitError{code: rep.Outcome.ExitCode(), outcome: rep.Outcome.String()}
	}
	log.Info("stockwatch: run finished", attrs...)
	return nil
}

func renderConfig(cfg *config.Config, a *app) render.Config {
	b := cfg.Browser
	return render.Config{
		RemoteURL:        b.RemoteURL,
		Bin:              b.Bin,
		WaitSelector:     stock.CurrentStockSelector,
		NavigateTimeout:  b.NavigateTimeout,
		VisibleTimeout:   b.VisibleTimeout,
		SettleDelay:      b.SettleDelay,
		ScrollY:          b.ScrollY,
		UserAgent:        b.UserAgent,
		ResourceBlocking: b.BlockResources,
		ScreenshotPath:   b.Screenshot,
		Logger:           a.logger,
	}
}

// newNotifier falls back to logging alerts when no bot is configured.
func newNotifier(cfg *config.Config, a *app) notify.Notifier {
	t := cfg.Telegram
	if t.Token == "" || t.ChatID == "" {
		a.logger.Warn("stockwatch: telegram not configured, alerts go to the log only")
		return notify.NewLog(a.logger)
	}
	return notify.NewTelegram(t.Token, t.ChatID,
		notify.WithAPIBase(t.APIBase),
		notify.WithTimeout(t.Timeout),
		notify.WithLogger(a.logger),
	)
}
