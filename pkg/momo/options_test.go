package momo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/thesyncim/momo-e2e/pkg/momo/internal"
)

func TestNew_AssignsPortsFromAllocator(t *testing.T) {
	ports := NewPortAllocator(61000)
	c, err := New(&P2PConfig{}, WithExecutable("/bin/true"), WithPortAllocator(ports))
	require.NoError(t, err)

	assert.Equal(t, 61000, c.MetricsPort())
	assert.Equal(t, "http://localhost:61000/metrics", c.MetricsURL())
	assert.Equal(t, []string{"--metrics-port", "61000", "p2p", "--port", "61001"}, c.Args())
	assert.Equal(t, StateUnstarted, c.State())
	assert.Equal(t, ModeP2P, c.Mode())
	assert.Zero(t, c.PID())
}

func TestNew_DefaultMetricsPort(t *testing.T) {
	c, err := New(&AyameConfig{SignalingURL: "ws://x", RoomID: "r"}, WithExecutable("/bin/true"))
	require.NoError(t, err)
	assert.Equal(t, 9090, c.MetricsPort())
}

func TestNew_DoesNotMutateCallerConfig(t *testing.T) {
	cfg := &P2PConfig{}
	_, err := New(cfg, WithExecutable("/bin/true"), WithPortAllocator(NewPortAllocator(0)))
	require.NoError(t, err)
	assert.Zero(t, cfg.MetricsPort)
	assert.Zero(t, cfg.Port)
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"empty executable", WithExecutable("")},
		{"nil logger", WithLogger(nil)},
		{"negative initial wait", WithInitialWait(-time.Second)},
		{"zero startup timeout", WithStartupTimeout(0)},
		{"zero poll interval", WithStartupPollInterval(0)},
		{"zero probe timeout", WithProbeTimeout(0)},
		{"zero request timeout", WithRequestTimeout(0)},
		{"negative grace", WithGracePeriod(-1)},
		{"nil allocator", WithPortAllocator(nil)},
		{"nil clock", WithClock(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&P2PConfig{}, WithExecutable("/bin/true"), tt.opt)
			assert.Error(t, err)
		})
	}
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNew_RejectsUnencodableMetadata(t *testing.T) {
	for name, v := range map[string]any{
		"NaN":  math.NaN(),
		"func": func() {},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := &SoraConfig{
				SignalingURLs: []string{"wss://sora/signaling"},
				ChannelID:     "ch",
				Metadata:      map[string]any{"access_token": "tok", "bad": v},
			}
			_, err := New(cfg, WithExecutable("/bin/true"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "sora metadata")
		})
	}

	c, err := New(&SoraConfig{
		SignalingURLs: []string{"wss://sora/signaling"},
		ChannelID:     "ch",
		Metadata:      map[string]any{"access_token": "tok"},
	}, WithExecutable("/bin/true"))
	require.NoError(t, err)
	assert.Contains(t, c.Args(), `{"access_token":"tok"}`)
}

func TestController_MetricsBeforeStart(t *testing.T) {
	c, err := New(&P2PConfig{}, WithExecutable("/bin/true"), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	_, err = c.Metrics(t.Context())
	assert.ErrorIs(t, err, ErrNotRunning)
	ok, err := c.WaitForConnection(t.Context(), time.Second, 10*time.Millisecond)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.NoError(t, c.Stop())
	assert.Equal(t, StateStopped, c.State())
}

func TestController_StartupTimeoutWithMockClock(t *testing.T) {
	clk := internal.NewMockClock(time.Time{})
	// sleep keeps running without ever serving metrics
	c, err := New(&P2PConfig{CommonOptions: CommonOptions{MetricsPort: 1}},
		WithExecutable("/bin/sleep"),
		WithClock(clk),
		WithStartupTimeout(3*time.Second),
		WithProbeTimeout(100*time.Millisecond),
		WithGracePeriod(time.Second),
		WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	c.args = []string{"30"}

	err = c.Start(t.Context())
	var timeoutErr *StartupTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 3*time.Second, timeoutErr.Timeout)
	assert.Equal(t, 1, timeoutErr.Port)
	assert.Error(t, timeoutErr.LastErr)
	assert.Equal(t, StateStopped, c.State())
	assert.True(t, c.Exited())
	assert.GreaterOrEqual(t, clk.Slept(), 3*time.Second)
}
