package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/threading"

	"probsbots/internal/cli"
	"probsbots/internal/scheduler"
	managerpkg "probsbots/pkg/manager"
	"probsbots/pkg/metrics"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the decision, reconcile and account jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run()
		},
	}
}

func (a *app) run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.svc.Manager == nil {
		logx.Info("trader: decision loop disabled, running reconcile and account jobs only")
	}

	var metricsSrv *http.Server
	if addr := a.cfg.Schedule.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		threading.GoSafe(func() {
			logx.Infof("trader: serving metrics on %s/metrics", addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Errorf("trader: metrics server: %v", err)
			}
		})
	}

	sched := scheduler.New(a.svc.Metrics, a.jobs()...)
	sched.Start(ctx)
	<-ctx.Done()
	logx.Info("trader: shutdown signal received, waiting for in-flight jobs")

	clean := sched.Shutdown(a.cfg.Schedule.ShutdownGrace)
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logx.Errorf("trader: metrics shutdown: %v", err)
		}
	}
	if !clean {
		logx.Error("trader: stopped with jobs still in flight")
	} else {
		logx.Info("trader: stopped")
	}
	logx.Close()
	return nil
}

func newDecideCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decide",
		Short: "Run a single decision cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireManager(); err != nil {
				return err
			}
			out, err := a.svc.Manager.RunDecisionCycle(cmd.Context())
			if out != nil {
				c := out.Cycle
				fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: %s %s\n", c.Result, c.Operation, c.Symbol)
				if out.Record != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "opened %s %.6f @ %.4f (record %s)\n",
						out.Record.Symbol, out.Record.Contracts, out.Record.EntryPrice, out.Record.ID)
				}
			}
			if errors.Is(err, managerpkg.ErrGuardSkip) {
				fmt.Fprintln(cmd.OutOrStdout(), err)
				return nil
			}
			return err
		},
	}
}

func newReconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.svc.Reconciler.Run(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "checked=%d open=%d closed=%d misses=%d errors=%d\n",
				report.Checked, report.StillOpen, len(report.Closed), report.Misses, len(report.Errors))
			for _, c := range report.Closed {
				fmt.Fprintf(w, "  %s %s -> %s (%s) pnl=%.4f\n",
					c.Symbol, c.RecordID, c.Closure.Outcome, c.Closure.ExitReason, c.Closure.FinalPnL)
			}
			return errors.Join(report.Errors...)
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	var (
		symbol string
		days   int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show trading performance and open records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			report, err := a.svc.Performance.Report(ctx, symbol)
			if err != nil {
				return err
			}
			summary, err := a.svc.Performance.Summary(ctx, symbol, days)
			if err != nil {
				return err
			}
			open, err := a.svc.Store.ListOpen(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderStats(cli.Stats{
				Symbol:  symbol,
				Report:  report,
				Summary: summary,
				Open:    open,
			}))
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "restrict to one symbol")
	cmd.Flags().IntVar(&days, "days", 30, "summary lookback in days")
	return cmd
}
