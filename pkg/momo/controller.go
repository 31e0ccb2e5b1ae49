package momo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/thesyncim/momo-e2e/pkg/momo/internal"
)

// State is the lifecycle position of a Controller.
type State int

const (
	StateUnstarted State = iota
	StateStarting
	StateRunning
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// killWait bounds how long Stop waits for the reaper after SIGKILL.
const killWait = 5 * time.Second

// Controller owns one media client process: it spawns it, waits for its
// metrics endpoint, serves statistics queries and terminates it.
//
// A Controller is single use. Accessors and metrics calls are safe for
// concurrent use once Start has returned; Start itself must not race Stop.
type Controller struct {
	cfg         Config
	executable  string
	args        []string
	metricsPort int

	log    *zap.Logger
	timing Timing
	clock  internal.Clock
	env    []string
	ports  *PortAllocator

	stderr tailBuffer

	mu       sync.Mutex
	state    State
	cmd      *exec.Cmd
	done     chan struct{} // closed once the process has been reaped
	exitCode int
	client   *http.Client

	stopOnce sync.Once
	stopErr  error
}

// New prepares a controller for cfg. It resolves the executable, assigns
// unset ports and builds the argument vector; no process is spawned.
func New(cfg Config, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("momo: nil config")
	}
	c := &Controller{
		cfg:    cloneConfig(cfg),
		log:    zap.NewNop(),
		timing: DefaultTiming(),
		clock:  internal.MonotonicClock{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("momo: apply option: %w", err)
		}
	}

	if c.executable == "" {
		exe, err := FindExecutable("")
		if err != nil {
			return nil, err
		}
		c.executable = exe
	}

	common := c.cfg.Common()
	switch {
	case common.MetricsPort == 0 && c.ports != nil:
		common.MetricsPort = c.ports.Next()
	case common.MetricsPort == 0:
		common.MetricsPort = defaultMetricsPort
	}
	if p2p, ok := c.cfg.(*P2PConfig); ok && p2p.Port == 0 && c.ports != nil {
		p2p.Port = c.ports.Next()
	}
	c.metricsPort = common.MetricsPort
	if sora, ok := c.cfg.(*SoraConfig); ok && len(sora.Metadata) > 0 {
		if _, err := encodeMetadata(sora.Metadata); err != nil {
			return nil, err
		}
	}
	c.args = BuildArgs(c.cfg)
	return c, nil
}

func cloneConfig(cfg Config) Config {
	switch v := cfg.(type) {
	case *P2PConfig:
		cp := *v
		return &cp
	case *AyameConfig:
		cp := *v
		return &cp
	case *SoraConfig:
		cp := *v
		return &cp
	default:
		return cfg
	}
}

// Start spawns the client and blocks until its metrics endpoint is ready.
// In Sora mode readiness additionally requires a non-empty stats array.
// On any failure the process is cleaned up before Start returns.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUnstarted {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateStarting
	c.mu.Unlock()

	if err := c.spawn(); err != nil {
		c.fail()
		return err
	}
	if err := c.waitForStartup(ctx); err != nil {
		c.log.Error("momo failed to start", zap.Int("pid", c.PID()), zap.Error(err))
		c.fail()
		return err
	}

	c.mu.Lock()
	c.client = &http.Client{Timeout: c.timing.RequestTimeout}
	c.state = StateRunning
	c.mu.Unlock()
	return nil
}

func (c *Controller) spawn() error {
	cmd := exec.Command(c.executable, c.args...)
	// Stdout is discarded; stderr is kept for diagnostics.
	cmd.Stdout = nil
	cmd.Stderr = &c.stderr
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	c.log.Info("starting momo", zap.String("command", QuoteArgs(append([]string{c.executable}, c.args...))))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("momo: start %s: %w", c.executable, err)
	}
	c.log.Info("started momo process", zap.Int("pid", cmd.Process.Pid))

	done := make(chan struct{})
	c.mu.Lock()
	c.cmd = cmd
	c.done = done
	c.mu.Unlock()

	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		c.mu.Lock()
		c.exitCode = code
		c.mu.Unlock()
		close(done)
	}()
	return nil
}

func (c *Controller) fail() {
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
	if err := c.Stop(); err != nil {
		c.log.Warn("cleanup after failed start", zap.Error(err))
	}
}

func (c *Controller) waitForStartup(ctx context.Context) error {
	t := c.timing
	if err := c.clock.Sleep(ctx, t.InitialWait); err != nil {
		return err
	}
	if c.metricsPort < 0 {
		return c.exitError()
	}

	url := c.MetricsURL()
	probe := &http.Client{Timeout: t.ProbeTimeout}
	defer probe.CloseIdleConnections()

	c.log.Info("waiting for metrics endpoint",
		zap.Int("port", c.metricsPort), zap.Duration("timeout", t.StartupTimeout))
	start := c.clock.Now()
	deadline := start.Add(t.StartupTimeout)
	nextProgress := start.Add(t.ProgressInterval)
	var lastErr error
	for c.clock.Now().Before(deadline) {
		if err := c.exitError(); err != nil {
			return err
		}
		snap, err := fetchSnapshot(ctx, probe, url)
		switch {
		case err != nil:
			lastErr = err
		case c.cfg.Mode() == ModeSora && len(snap.Stats) == 0:
			lastErr = errors.New("metrics endpoint is up but stats is empty")
		default:
			c.log.Info("momo started",
				zap.Duration("elapsed", c.clock.Now().Sub(start)), zap.Int("stats", len(snap.Stats)))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if now := c.clock.Now(); !now.Before(nextProgress) {
			fields := []zap.Field{
				zap.Int("port", c.metricsPort),
				zap.Duration("elapsed", now.Sub(start)),
				zap.NamedError("last", lastErr),
			}
			if s := c.stderr.Unread(); s != "" {
				fields = append(fields, zap.String("stderr", s))
			}
			c.log.Info("still waiting for metrics", fields...)
			nextProgress = now.Add(t.ProgressInterval)
		}
		if err := c.clock.Sleep(ctx, t.StartupPollInterval); err != nil {
			return err
		}
	}
	if err := c.exitError(); err != nil {
		return err
	}
	return &StartupTimeoutError{
		Port:    c.metricsPort,
		Timeout: t.StartupTimeout,
		LastErr: lastErr,
		Stderr:  c.stderr.String(),
	}
}

// exitError returns an *ExitError if the process has been reaped.
func (c *Controller) exitError() error {
	c.mu.Lock()
	done, cmd := c.done, c.cmd
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
	default:
		return nil
	}
	c.mu.Lock()
	code := c.exitCode
	c.mu.Unlock()
	return &ExitError{PID: cmd.Process.Pid, ExitCode: code, Stderr: c.stderr.String()}
}

// Exited reports whether the process has terminated.
func (c *Controller) Exited() bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Stop terminates the process: SIGTERM, a grace period, then SIGKILL. It
// releases the HTTP client and pauses briefly so the client's ports are
// free for the next test. Stop is idempotent and safe after a failed Start.
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cmd, done, client := c.cmd, c.done, c.client
		c.client = nil
		c.mu.Unlock()

		if client != nil {
			client.CloseIdleConnections()
		}
		c.stopErr = c.terminate(cmd, done)

		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()

		if cmd != nil {
			_ = c.clock.Sleep(context.Background(), c.timing.PostStopDelay)
		}
	})
	return c.stopErr
}

func (c *Controller) terminate(cmd *exec.Cmd, done <-chan struct{}) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}

	pid := cmd.Process.Pid
	c.log.Info("terminating momo process", zap.Int("pid", pid))
	var errs error
	if err := terminate(cmd.Process); err != nil {
		select {
		case <-done:
			return nil
		default:
			errs = multierr.Append(errs, fmt.Errorf("terminate pid %d: %w", pid, err))
		}
	}

	grace := time.NewTimer(c.timing.GracePeriod)
	defer grace.Stop()
	select {
	case <-done:
		c.log.Info("momo process terminated gracefully", zap.Int("pid", pid))
		return errs
	case <-grace.C:
	}

	c.log.Warn("force killing momo process", zap.Int("pid", pid), zap.Duration("grace", c.timing.GracePeriod))
	if err := kill(cmd.Process); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("kill pid %d: %w", pid, err))
	}
	reap := time.NewTimer(killWait)
	defer reap.Stop()
	select {
	case <-done:
		c.log.Info("momo process killed", zap.Int("pid", pid))
	case <-reap.C:
		errs = multierr.Append(errs, fmt.Errorf("pid %d not reaped %s after SIGKILL", pid, killWait))
	}
	return errs
}

// endpoint returns the HTTP client and URL for metrics calls.
func (c *Controller) endpoint() (*http.Client, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning || c.client == nil {
		return nil, "", ErrNotRunning
	}
	if c.metricsPort < 0 {
		return nil, "", ErrMetricsDisabled
	}
	return c.client, c.metricsURL(), nil
}

// Metrics performs a single GET of the metrics endpoint.
func (c *Controller) Metrics(ctx context.Context) (*Snapshot, error) {
	client, url, err := c.endpoint()
	if err != nil {
		return nil, err
	}
	return fetchSnapshot(ctx, client, url)
}

// WaitForStats polls until a single snapshot satisfies every condition,
// sleeps opts.Settle and returns that snapshot. Transient request errors
// are retried until the deadline; an exited process fails immediately.
// With no conditions it is a plain Metrics call.
func (c *Controller) WaitForStats(ctx context.Context, conds []WaitCondition, opts WaitOptions) (*Snapshot, error) {
	if len(conds) == 0 {
		return c.Metrics(ctx)
	}
	for _, cond := range conds {
		if _, ok := cond["type"]; !ok {
			return nil, fmt.Errorf("momo: wait condition %s has no type key", cond)
		}
	}
	client, url, err := c.endpoint()
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	deadline := c.clock.Now().Add(opts.Timeout)
	unmet := conds
	var lastErr error
	for c.clock.Now().Before(deadline) {
		if err := c.exitError(); err != nil {
			return nil, err
		}
		snap, err := fetchSnapshot(ctx, client, url)
		if err == nil {
			lastErr = nil
			if unmet = snap.Unmet(conds); len(unmet) == 0 {
				if err := c.clock.Sleep(ctx, opts.Settle); err != nil {
					return nil, err
				}
				return snap, nil
			}
		} else {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		}
		if err := c.clock.Sleep(ctx, opts.Interval); err != nil {
			return nil, err
		}
	}
	return nil, &StatsTimeoutError{Timeout: opts.Timeout, Unmet: unmet, LastErr: lastErr}
}

// WaitForConnection polls until a transport reports both DTLS and ICE as
// connected. It returns false when the timeout elapses or the process has
// exited; the error is reserved for usage errors and cancellation.
func (c *Controller) WaitForConnection(ctx context.Context, timeout, interval time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	_, err := c.WaitForStats(ctx, ConnectionConditions, WaitOptions{Timeout: timeout, Interval: interval})
	var timeoutErr *StatsTimeoutError
	var exitErr *ExitError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &timeoutErr), errors.As(err, &exitErr):
		c.log.Debug("connection not established", zap.Error(err))
		return false, nil
	default:
		return false, err
	}
}

// Run starts a controller for cfg, calls fn and always stops the process,
// also when fn panics.
func Run(ctx context.Context, cfg Config, fn func(*Controller) error, opts ...Option) (err error) {
	c, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, c.Stop())
	}()
	return fn(c)
}

func fetchSnapshot(ctx context.Context, client *http.Client, url string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return decodeSnapshot(body)
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PID returns the process id, or 0 before spawn.
func (c *Controller) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// MetricsPort returns the port passed as --metrics-port, or -1.
func (c *Controller) MetricsPort() int { return c.metricsPort }

// MetricsURL returns the metrics endpoint URL.
func (c *Controller) MetricsURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metricsURL()
}

func (c *Controller) metricsURL() string {
	return fmt.Sprintf("http://localhost:%d/metrics", c.metricsPort)
}

// Args returns a copy of the argument vector, without the executable.
func (c *Controller) Args() []string {
	return append([]string(nil), c.args...)
}

// Executable returns the resolved client executable.
func (c *Controller) Executable() string { return c.executable }

// Config returns the effective configuration, with assigned ports filled in.
func (c *Controller) Config() Config { return c.cfg }

// Mode returns the configured mode.
func (c *Controller) Mode() Mode { return c.cfg.Mode() }

// Stderr returns the retained tail of the process's standard error.
func (c *Controller) Stderr() string { return c.stderr.String() }

// HTTPClient returns the client used for metrics requests, for tests
// that exercise the endpoint directly. It is nil unless Running.
func (c *Controller) HTTPClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}
