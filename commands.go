package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/projecteru2/core/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/berocorpdotnet/pvewatch/internal/api"
	"github.com/berocorpdotnet/pvewatch/internal/config"
	"github.com/berocorpdotnet/pvewatch/internal/lock"
	"github.com/berocorpdotnet/pvewatch/internal/metrics"
	"github.com/berocorpdotnet/pvewatch/internal/models"
	"github.com/berocorpdotnet/pvewatch/internal/monitor"
	"github.com/berocorpdotnet/pvewatch/internal/notify"
	"github.com/berocorpdotnet/pvewatch/internal/setup"
	"github.com/berocorpdotnet/pvewatch/internal/state"
	"github.com/berocorpdotnet/pvewatch/internal/ui"
)

func runMonitor(ctx context.Context) error {
	logger := log.WithFunc("main.runMonitor")

	if conf.Host == "" || conf.Token == "" {
		fmt.Println("No configuration found. Running initial setup...")
		creds, err := obtainCredentials(ctx, nil)
		if err != nil {
			return err
		}
		conf.ApplyCredentials(creds)
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	lockPath, err := config.LockPath()
	if err != nil {
		return err
	}
	inst, err := lock.Acquire(lockPath)
	if err != nil {
		return err
	}
	defer func() { _ = inst.Release() }()

	client := newClient(conf)
	if _, err := client.GetNodes(ctx); err != nil {
		if api.IsUnauthorized(err) {
			return fmt.Errorf("proxmox rejected the token: %w; run 'pvewatch setup' to reconfigure", err)
		}
		// Transient outages are handled by the sweep loop.
		logger.Warnf(ctx, "initial connection to %s failed: %v", conf.Host, err)
	}

	sender, err := newSender(conf)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	mon := monitor.New(client, sender, state.NewDetector(), metrics.New(reg), monitor.Options{
		Concurrency: conf.Concurrency,
		IgnoreFrom:  conf.IgnoreFrom,
		IgnoreTo:    conf.IgnoreTo,
	})
	sched := monitor.NewScheduler(mon, monitor.RealClock(), conf.Interval, conf.ErrorBackoff)

	logger.Infof(ctx, "watching %s every %s, VM IDs %d-%d ignored", conf.Host, conf.Interval, conf.IgnoreFrom, conf.IgnoreTo-1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(ctx) })
	if conf.MetricsAddr != "" {
		g.Go(func() error { return metrics.Serve(ctx, conf.MetricsAddr, reg) })
	}
	if dashboard {
		g.Go(func() error {
			defer cancel()
			return ui.Run(ctx, mon)
		})
	}
	return g.Wait()
}

func newClient(c *config.Config) *api.Client {
	return api.NewClientWithToken(c.Host, c.Port, c.Token,
		api.WithTimeout(c.RequestTimeout),
		api.WithTLSVerify(!c.InsecureTLS),
	)
}

func newSender(c *config.Config) (notify.Sender, error) {
	var sender notify.Sender = notify.LogSender{}
	if !c.DryRun {
		sender = notify.NewDiscord(c.WebhookURL, c.RequestTimeout)
	}
	if err := sender.Validate(); err != nil {
		return nil, fmt.Errorf("notification sink: %w", err)
	}
	return sender, nil
}

// obtainCredentials runs the wizard on a terminal, the line prompt otherwise.
func obtainCredentials(ctx context.Context, prev *config.Credentials) (*config.Credentials, error) {
	if setup.IsInteractive() {
		return setup.RunSetupWizard(prev)
	}
	return setup.RunPlainSetup(ctx, os.Stdin, os.Stdout)
}

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Connect to Proxmox, create an API token and store credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if config.Exists() && setup.IsInteractive() {
				ok, err := setup.ShowReconfigurePrompt(os.Stdin, os.Stdout)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Keeping existing configuration.")
					return nil
				}
			}

			// Pre-fill from everything resolved so far, flags and env included.
			creds, err := obtainCredentials(cmd.Context(), conf.Credentials())
			if err != nil {
				return err
			}
			path, _ := config.Path()
			fmt.Printf("Configuration for %s saved to %s\n", creds.Host, path)
			return nil
		},
	}
}

func newTestNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send one sample notification through the configured sink",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sender, err := newSender(conf)
			if err != nil {
				return err
			}
			msg := sampleMessage(time.Now())
			if err := sender.Send(cmd.Context(), msg); err != nil {
				return err
			}
			fmt.Printf("Sent test notification %s\n", msg.ID)
			return nil
		},
	}
}

func sampleMessage(at time.Time) notify.Message {
	msg := notify.Format(models.VMIdentity{Node: "pve", VMID: 100}, state.Running, &notify.Snapshot{
		Name:   "pvewatch-test",
		CPU:    0.0425,
		Mem:    512 << 20,
		MaxMem: 2 << 30,
		Uptime: 3725,
	}, at)
	msg.ID = uuid.NewString()
	return msg
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or remove stored credentials",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print where credentials are stored",
			RunE: func(_ *cobra.Command, _ []string) error {
				path, err := config.Path()
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			},
		},
		newConfigDeleteCmd(),
	)
	return cmd
}

func newConfigDeleteCmd() *cobra.Command {
	var keepToken bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Revoke the API token on Proxmox and remove stored credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !keepToken {
				if err := revokeToken(cmd.Context(), conf); err != nil {
					log.WithFunc("main.configDelete").Warnf(cmd.Context(), "token not revoked, remove it in the Proxmox UI: %v", err)
				}
			}
			if err := config.Delete(); err != nil {
				return err
			}
			fmt.Println("Stored credentials removed.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepToken, "keep-token", false, "leave the API token on the Proxmox side")
	return cmd
}

// revokeToken deletes the configured API token using the token itself.
// Without a host and token there is nothing to revoke.
func revokeToken(ctx context.Context, c *config.Config) error {
	if c.Host == "" || c.Token == "" {
		return nil
	}
	user, tokenID, err := api.ParseToken(c.Token)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	if err := newClient(c).DeleteAPIToken(ctx, user, tokenID); err != nil {
		return err
	}
	fmt.Printf("Revoked API token %s!%s\n", user, tokenID)
	return nil
}
