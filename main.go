package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/berocorpdotnet/pvewatch/internal/config"
)

var (
	cfgFile   string
	dashboard bool
	v         *viper.Viper
	conf      *config.Config
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v = config.NewViper()

	run := func(cmd *cobra.Command, _ []string) error {
		return runMonitor(cmd.Context())
	}

	cmd := &cobra.Command{
		Use:           "pvewatch",
		Short:         "Watch Proxmox VMs and post state changes to Discord",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd.Context())
		},
		RunE: run,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "settings file (yaml, json or toml)")
	pf.BoolVar(&dashboard, "dashboard", false, "show the live dashboard while monitoring")
	pf.Bool("dry-run", false, "log notifications instead of posting them")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	pf.Duration("interval", 0, "pause between sweeps")
	pf.Duration("error-backoff", 0, "pause after a failed sweep")
	pf.Int("concurrency", 0, "nodes swept in parallel")
	pf.String("log-level", "", "log level")

	for key, flag := range map[string]string{
		config.KeyDryRun:       "dry-run",
		config.KeyMetricsAddr:  "metrics-addr",
		config.KeyInterval:     "interval",
		config.KeyErrorBackoff: "error-backoff",
		config.KeyConcurrency:  "concurrency",
		config.KeyLogLevel:     "log-level",
	} {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Poll Proxmox and notify on VM state changes (default)",
			RunE:  run,
		},
		newSetupCmd(),
		newTestNotifyCmd(),
		newConfigCmd(),
	)
	return cmd
}

func initConfig(ctx context.Context) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read %s: %w", cfgFile, err)
		}
	}

	var err error
	if conf, err = config.Resolve(ctx, v); err != nil {
		return err
	}

	// The dashboard owns the terminal, so logs must go elsewhere.
	if dashboard && conf.Log.Filename == "" {
		if conf.Log.Filename, err = config.DefaultLogFile(); err != nil {
			return err
		}
	}
	return log.SetupLog(ctx, &conf.Log, "")
}
