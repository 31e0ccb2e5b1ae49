//go:build e2e

package e2e

import (
	"testing"

	"github.com/thesyncim/momo-e2e/pkg/momo"
)

func p2p() *momo.P2PConfig {
	return &momo.P2PConfig{CommonOptions: momo.CommonOptions{FakeCaptureDevice: true}}
}

func TestP2P_CustomArguments(t *testing.T) {
	cfg := p2p()
	cfg.Resolution = "QVGA"
	cfg.Framerate = 15
	cfg.LogLevel = "info"
	c := start(t, cfg)

	snap, err := c.Metrics(t.Context())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if snap.Version == "" {
		t.Error("empty version")
	}
}

func TestP2P_ConcurrentInstances(t *testing.T) {
	first := start(t, p2p())
	second := start(t, p2p())

	if first.MetricsPort() == second.MetricsPort() {
		t.Fatalf("instances share metrics port %d", first.MetricsPort())
	}
	for _, c := range []*momo.Controller{first, second} {
		snap, err := c.Metrics(t.Context())
		if err != nil {
			t.Fatalf("metrics on %d: %v", c.MetricsPort(), err)
		}
		if snap.Version == "" {
			t.Errorf("empty version on port %d", c.MetricsPort())
		}
	}

	if err := first.Stop(); err != nil {
		t.Fatalf("stop first: %v", err)
	}
	if _, err := second.Metrics(t.Context()); err != nil {
		t.Errorf("second instance unreachable after stopping the first: %v", err)
	}
}

func TestP2P_DynamicCreationAndCleanup(t *testing.T) {
	var instances []*momo.Controller
	for range 3 {
		c, err := momo.New(p2p(), momo.WithPortAllocator(ports))
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		t.Cleanup(func() { _ = c.Stop() })
		if err := c.Start(t.Context()); err != nil {
			t.Fatalf("start: %v", err)
		}
		instances = append(instances, c)
	}
	for i, c := range instances {
		if _, err := c.Metrics(t.Context()); err != nil {
			t.Errorf("instance %d: %v", i, err)
		}
	}
	for i, c := range instances {
		if err := c.Stop(); err != nil {
			t.Errorf("stop instance %d: %v", i, err)
		}
		if c.State() != momo.StateStopped {
			t.Errorf("instance %d state = %s, want stopped", i, c.State())
		}
	}
}
