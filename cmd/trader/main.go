package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zeromicro/go-zero/core/logx"

	"probsbots/internal/cli"
	"probsbots/internal/config"
	"probsbots/internal/svc"
)

type app struct {
	configFile string
	cfg        *config.Config
	svc        *svc.ServiceContext
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "trader",
		Short: "probsbots autonomous futures trader",
		Long: `trader runs the decision loop against the configured venue: one oracle
decision per cycle, risk-managed entries with stop-loss and take-profit,
and reconciliation of closed positions into the ledger.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "f", "etc/probsbots.yaml", "the config file")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newDecideCmd(a))
	root.AddCommand(newReconcileCmd(a))
	root.AddCommand(newStatsCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	logx.MustSetup(cfg.Log)
	logx.DisableStat()
	cli.LogConfigSummary(cfg)

	svcCtx, err := svc.NewServiceContext(*cfg)
	if err != nil {
		return err
	}
	a.cfg, a.svc = cfg, svcCtx
	return nil
}

func (a *app) requireManager() error {
	if a.svc.Manager == nil {
		return fmt.Errorf("decision loop disabled: configure llm and executor sections in %s", a.configFile)
	}
	return nil
}
