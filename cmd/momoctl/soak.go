package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thesyncim/momo-e2e/pkg/momo"
)

// SoakResult contains the results of a soak run.
type SoakResult struct {
	Duration       time.Duration
	Polls          int
	FetchErrors    int
	Disconnects    int
	BytesSent      float64
	BytesReceived  float64
	PeakStats      int
	ProcessExited  bool
	ConnectedAtEnd bool
	Status         string
}

type soakFlags struct {
	duration       time.Duration
	interval       time.Duration
	statusInterval time.Duration
	waitConnection time.Duration
	maxFetchErrors int
}

func newSoakCmd(g *globalFlags) *cobra.Command {
	f := &soakFlags{}
	cmd := &cobra.Command{
		Use:   "soak",
		Short: "Keep the client connected for a long period and watch its stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Momo Soak Runner\n")
			fmt.Fprintf(out, "================\n")
			fmt.Fprintf(out, "Profile:  %s\n", g.profile)
			fmt.Fprintf(out, "Mode:     %s\n", cfg.Mode().DisplayName())
			fmt.Fprintf(out, "Duration: %v\n", f.duration)
			fmt.Fprintf(out, "Interval: %v\n\n", f.interval)

			var result SoakResult
			err = momo.Run(ctx, cfg, func(c *momo.Controller) error {
				result = runSoak(ctx, c, f, out, log)
				return nil
			}, g.options(log)...)
			if err != nil {
				return err
			}
			printSummary(out, result, f)
			if result.Status != "PASS" {
				return fmt.Errorf("soak failed")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&f.duration, "duration", time.Hour, "test duration (e.g. 10m, 24h)")
	cmd.Flags().DurationVar(&f.interval, "interval", 5*time.Second, "metrics poll interval")
	cmd.Flags().DurationVar(&f.statusInterval, "status-interval", time.Minute, "progress line interval")
	cmd.Flags().DurationVar(&f.waitConnection, "wait-connection", 30*time.Second, "initial connection budget")
	cmd.Flags().IntVar(&f.maxFetchErrors, "max-fetch-errors", 0, "tolerated metrics fetch failures")
	return cmd
}

func runSoak(ctx context.Context, c *momo.Controller, f *soakFlags, out io.Writer, log *zap.Logger) SoakResult {
	result := SoakResult{Status: "PASS"}
	start := time.Now()

	fmt.Fprintf(out, "[%s] Waiting for connection...\n", formatDuration(0))
	ok, err := c.WaitForConnection(ctx, f.waitConnection, 0)
	if err != nil || !ok {
		fmt.Fprintf(out, "[%s] ERROR: no connection within %v\n", formatDuration(time.Since(start)), f.waitConnection)
		result.Status = "FAIL"
		result.ProcessExited = c.Exited()
		result.Duration = time.Since(start)
		return result
	}
	fmt.Fprintf(out, "[%s] Connected, starting soak...\n", formatDuration(time.Since(start)))

	lastStatus := time.Now()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result

		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed >= f.duration {
				result.Duration = elapsed
				return result
			}
			if c.Exited() {
				fmt.Fprintf(out, "[%s] ERROR: client process exited\n", formatDuration(elapsed))
				result.ProcessExited = true
				result.Status = "FAIL"
				result.Duration = elapsed
				return result
			}

			result.Polls++
			snap, err := c.Metrics(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				result.FetchErrors++
				log.Warn("metrics fetch failed", zap.Error(err))
				if result.FetchErrors > f.maxFetchErrors {
					result.Status = "FAIL"
				}
				continue
			}
			observe(&result, snap, elapsed, out)

			if now.Sub(lastStatus) >= f.statusInterval {
				lastStatus = now
				fmt.Fprintf(out, "[%s] Polls: %d, Stats: %d, Sent: %.2f MB, Received: %.2f MB, Disconnects: %d\n",
					formatDuration(elapsed),
					result.Polls,
					len(snap.Stats),
					result.BytesSent/(1024*1024),
					result.BytesReceived/(1024*1024),
					result.Disconnects)
			}
		}
	}
}

// observe folds one snapshot into the result.
func observe(r *SoakResult, snap *momo.Snapshot, elapsed time.Duration, out io.Writer) {
	if n := len(snap.Stats); n > r.PeakStats {
		r.PeakStats = n
	}
	connected := snap.Satisfies(momo.ConnectionConditions)
	if !connected && r.ConnectedAtEnd {
		fmt.Fprintf(out, "[%s] WARNING: transport disconnected\n", formatDuration(elapsed))
		r.Disconnects++
	}
	r.ConnectedAtEnd = connected

	var sent, received float64
	for _, e := range snap.FindAll(map[string]any{"type": "outbound-rtp"}) {
		if n, ok := e.Number("bytesSent"); ok {
			sent += n
		}
	}
	for _, e := range snap.FindAll(map[string]any{"type": "inbound-rtp"}) {
		if n, ok := e.Number("bytesReceived"); ok {
			received += n
		}
	}
	// Counters reset when a peer is replaced; keep the running maximum.
	if sent > r.BytesSent {
		r.BytesSent = sent
	}
	if received > r.BytesReceived {
		r.BytesReceived = received
	}
}

func printSummary(out io.Writer, r SoakResult, f *soakFlags) {
	if !r.ConnectedAtEnd || r.ProcessExited || r.FetchErrors > f.maxFetchErrors {
		r.Status = "FAIL"
	}
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Soak Run Complete\n")
	fmt.Fprintf(out, "=================\n")
	fmt.Fprintf(out, "Duration:        %v\n", r.Duration.Round(time.Second))
	fmt.Fprintf(out, "Polls:           %d\n", r.Polls)
	fmt.Fprintf(out, "Fetch errors:    %d\n", r.FetchErrors)
	fmt.Fprintf(out, "Disconnects:     %d\n", r.Disconnects)
	fmt.Fprintf(out, "Bytes sent:      %.2f MB\n", r.BytesSent/(1024*1024))
	fmt.Fprintf(out, "Bytes received:  %.2f MB\n", r.BytesReceived/(1024*1024))
	fmt.Fprintf(out, "Peak stats:      %d\n", r.PeakStats)
	fmt.Fprintf(out, "Status:          %s\n", r.Status)
	fmt.Fprintf(out, "\n")

	fmt.Fprintf(out, "Pass Criteria:\n")
	fmt.Fprintf(out, "  - Process alive:        %s\n", checkMark(!r.ProcessExited))
	fmt.Fprintf(out, "  - Connected at end:     %s\n", checkMark(r.ConnectedAtEnd))
	fmt.Fprintf(out, "  - Fetch errors <= %d:    %s\n", f.maxFetchErrors, checkMark(r.FetchErrors <= f.maxFetchErrors))
	fmt.Fprintf(out, "  - Media flowed:         %s\n", checkMark(r.BytesSent > 0 || r.BytesReceived > 0))
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
