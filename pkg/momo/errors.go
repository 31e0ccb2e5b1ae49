package momo

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotRunning is returned by accessors used outside the Running state.
	ErrNotRunning = errors.New("momo: process not running")
	// ErrAlreadyStarted is returned by a second Start on the same controller.
	ErrAlreadyStarted = errors.New("momo: controller already started")
	// ErrExecutableNotFound is returned when no client executable can be located.
	ErrExecutableNotFound = errors.New("momo: executable not found")
	// ErrMetricsDisabled is returned by metrics calls when MetricsPort is -1.
	ErrMetricsDisabled = errors.New("momo: metrics endpoint disabled")
)

// OptionsError reports options that belong to a mode other than the one
// selected. No process is spawned when it is returned.
type OptionsError struct {
	Mode    Mode
	Options []string // sorted
	Owners  []Mode   // modes the offending options belong to
}

func (e *OptionsError) Error() string {
	owners := make([]string, len(e.Owners))
	for i, m := range e.Owners {
		owners[i] = string(m)
	}
	return fmt.Sprintf("invalid options specified for %s mode: %s\nthese options are only for %s mode",
		e.Mode.DisplayName(), strings.Join(e.Options, ", "), strings.Join(owners, "/"))
}

// ExitError reports that the client exited before it became ready.
type ExitError struct {
	PID      int
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("momo process %d exited unexpectedly with code %d", e.PID, e.ExitCode)
	if e.Stderr != "" {
		msg += "\nstderr:\n" + e.Stderr
	}
	return msg
}

// StartupTimeoutError reports that the metrics endpoint never became ready.
type StartupTimeoutError struct {
	Port    int
	Timeout time.Duration
	LastErr error
	Stderr  string
}

func (e *StartupTimeoutError) Error() string {
	msg := fmt.Sprintf("momo process failed to start within %s (metrics port %d)", e.Timeout, e.Port)
	if e.LastErr != nil {
		msg += ": last probe: " + e.LastErr.Error()
	}
	if e.Stderr != "" {
		msg += "\nstderr:\n" + e.Stderr
	}
	return msg
}

func (e *StartupTimeoutError) Unwrap() error { return e.LastErr }

// StatusError is a non-2xx answer from the metrics endpoint.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d: %s", e.URL, e.StatusCode, strings.TrimSpace(e.Body))
}

// StatsTimeoutError reports wait conditions that no snapshot satisfied in time.
type StatsTimeoutError struct {
	Timeout time.Duration
	Unmet   []WaitCondition
	LastErr error
}

func (e *StatsTimeoutError) Error() string {
	parts := make([]string, len(e.Unmet))
	for i, c := range e.Unmet {
		parts[i] = c.String()
	}
	msg := fmt.Sprintf("timeout waiting for expected stats within %s; unmet: %s", e.Timeout, strings.Join(parts, ", "))
	if e.LastErr != nil {
		msg += "; last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *StatsTimeoutError) Unwrap() error { return e.LastErr }
