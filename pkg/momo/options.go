package momo

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/thesyncim/momo-e2e/pkg/momo/internal"
)

// Option configures a Controller.
type Option func(*Controller) error

// Timing holds the controller's waiting parameters.
type Timing struct {
	InitialWait         time.Duration // before the first readiness probe
	StartupTimeout      time.Duration // total readiness budget, measured after InitialWait
	StartupPollInterval time.Duration
	ProbeTimeout        time.Duration // per readiness probe
	RequestTimeout      time.Duration // per Metrics request
	GracePeriod         time.Duration // between SIGTERM and SIGKILL
	PostStopDelay       time.Duration
	ProgressInterval    time.Duration // startup progress log cadence
}

// DefaultTiming returns the timing the client has been tested with.
func DefaultTiming() Timing {
	return Timing{
		InitialWait:         2 * time.Second,
		StartupTimeout:      30 * time.Second,
		StartupPollInterval: time.Second,
		ProbeTimeout:        5 * time.Second,
		RequestTimeout:      10 * time.Second,
		GracePeriod:         5 * time.Second,
		PostStopDelay:       200 * time.Millisecond,
		ProgressInterval:    5 * time.Second,
	}
}

// WithExecutable sets the client executable, skipping discovery.
func WithExecutable(path string) Option {
	return func(c *Controller) error {
		if path == "" {
			return errors.New("executable path must not be empty")
		}
		c.executable = path
		return nil
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) error {
		if l == nil {
			return errors.New("logger must not be nil")
		}
		c.log = l
		return nil
	}
}

// WithTiming replaces all timing parameters at once.
func WithTiming(t Timing) Option {
	return func(c *Controller) error {
		c.timing = t
		return nil
	}
}

// WithInitialWait sets the pause between spawn and the first probe.
// Default: 2s
func WithInitialWait(d time.Duration) Option {
	return func(c *Controller) error {
		if d < 0 {
			return errors.New("initial wait must not be negative")
		}
		c.timing.InitialWait = d
		return nil
	}
}

// WithStartupTimeout sets how long Start waits for the metrics endpoint.
// Default: 30s
func WithStartupTimeout(d time.Duration) Option {
	return func(c *Controller) error {
		if d <= 0 {
			return errors.New("startup timeout must be positive")
		}
		c.timing.StartupTimeout = d
		return nil
	}
}

// WithStartupPollInterval sets the pause between readiness probes.
// Default: 1s
func WithStartupPollInterval(d time.Duration) Option {
	return func(c *Controller) error {
		if d <= 0 {
			return errors.New("startup poll interval must be positive")
		}
		c.timing.StartupPollInterval = d
		return nil
	}
}

// WithProbeTimeout bounds each readiness probe.
// Default: 5s
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Controller) error {
		if d <= 0 {
			return errors.New("probe timeout must be positive")
		}
		c.timing.ProbeTimeout = d
		return nil
	}
}

// WithRequestTimeout bounds each metrics request after startup.
// Default: 10s
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		c.timing.RequestTimeout = d
		return nil
	}
}

// WithGracePeriod sets how long Stop waits after SIGTERM before SIGKILL.
// Default: 5s
func WithGracePeriod(d time.Duration) Option {
	return func(c *Controller) error {
		if d < 0 {
			return errors.New("grace period must not be negative")
		}
		c.timing.GracePeriod = d
		return nil
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(c *Controller) error {
		c.env = append(c.env, env...)
		return nil
	}
}

// WithPortAllocator makes New take unset ports from p.
func WithPortAllocator(p *PortAllocator) Option {
	return func(c *Controller) error {
		if p == nil {
			return errors.New("port allocator must not be nil")
		}
		c.ports = p
		return nil
	}
}

// WithClock replaces the time source used by the polling loops.
func WithClock(clk internal.Clock) Option {
	return func(c *Controller) error {
		if clk == nil {
			return errors.New("clock must not be nil")
		}
		c.clock = clk
		return nil
	}
}
