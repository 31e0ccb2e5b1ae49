package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thesyncim/momo-e2e/pkg/momo"
)

type runFlags struct {
	waitConnection time.Duration
	stats          []string
	statsTimeout   time.Duration
	settle         time.Duration
	hold           time.Duration
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the client, wait for readiness and print a metrics snapshot",
		Long: `Start the client described by --profile and wait for its metrics
endpoint. With --wait-connection the command also waits for a connected
transport; each --stats flag adds a condition the snapshot must satisfy.
The final snapshot is printed as JSON and the client is stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, g, f)
		},
	}
	cmd.Flags().DurationVar(&f.waitConnection, "wait-connection", 0, "wait up to this long for DTLS and ICE to connect")
	cmd.Flags().StringArrayVar(&f.stats, "stats", nil, "stats condition as key=value pairs, e.g. type=codec,mimeType=video/VP8 (repeatable)")
	cmd.Flags().DurationVar(&f.statsTimeout, "stats-timeout", 10*time.Second, "budget for --stats conditions")
	cmd.Flags().DurationVar(&f.settle, "settle", 0, "sleep after the stats conditions are met")
	cmd.Flags().DurationVar(&f.hold, "hold", 0, "keep the client running this long before the final snapshot")
	return cmd
}

func runOnce(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	conds, err := parseConditions(f.stats)
	if err != nil {
		return err
	}
	cfg, err := g.config()
	if err != nil {
		return err
	}
	log, err := g.logger()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return momo.Run(ctx, cfg, func(c *momo.Controller) error {
		log.Info("client ready",
			zap.Int("pid", c.PID()),
			zap.String("mode", c.Mode().DisplayName()),
			zap.String("metrics", c.MetricsURL()))

		if f.waitConnection > 0 {
			ok, err := c.WaitForConnection(ctx, f.waitConnection, 0)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no connection within %s", f.waitConnection)
			}
			log.Info("connection established")
		}

		snap, err := waitAndSnapshot(ctx, c, conds, f)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}, g.options(log)...)
}

func waitAndSnapshot(ctx context.Context, c *momo.Controller, conds []momo.WaitCondition, f *runFlags) (*momo.Snapshot, error) {
	if len(conds) > 0 {
		snap, err := c.WaitForStats(ctx, conds, momo.WaitOptions{Timeout: f.statsTimeout, Settle: f.settle})
		if err != nil {
			return nil, err
		}
		// Without a hold the snapshot that met the conditions is the answer.
		if f.hold <= 0 {
			return snap, nil
		}
	}
	if f.hold > 0 {
		t := time.NewTimer(f.hold)
		defer t.Stop()
		select {
		case <-ctx.Done():
			// Interrupted holds still print what we have.
		case <-t.C:
		}
	}
	snap, err := c.Metrics(context.WithoutCancel(ctx))
	if errors.Is(err, momo.ErrMetricsDisabled) {
		return &momo.Snapshot{}, nil
	}
	return snap, err
}
