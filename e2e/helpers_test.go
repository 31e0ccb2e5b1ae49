//go:build e2e

package e2e

import (
	"os"
	"testing"
	"time"

	"github.com/thesyncim/momo-e2e/pkg/momo"
	"github.com/thesyncim/momo-e2e/pkg/momotest"
)

const defaultAyameURL = "wss://ayame-labo.shiguredo.app/signaling"

var ports = momo.NewPortAllocator(momo.DefaultPortBase)

// start launches the real client with ports from the shared allocator.
func start(t *testing.T, cfg momo.Config, opts ...momo.Option) *momo.Controller {
	t.Helper()
	opts = append([]momo.Option{momo.WithPortAllocator(ports)}, opts...)
	return momotest.StartController(t, cfg, opts...)
}

// waitConnected fails the test when c does not connect within 10s.
func waitConnected(t *testing.T, name string, c *momo.Controller) {
	t.Helper()
	ok, err := c.WaitForConnection(t.Context(), 10*time.Second, 0)
	if err != nil {
		t.Fatalf("%s: wait for connection: %v", name, err)
	}
	if !ok {
		t.Fatalf("%s failed to establish connection within timeout\nstderr:\n%s", name, c.Stderr())
	}
}

func soraSettings(t *testing.T) momotest.SoraSettings {
	t.Helper()
	s, ok, err := momotest.SoraSettingsFromEnv()
	if err != nil {
		t.Fatalf("load sora settings: %v", err)
	}
	if !ok {
		t.Skip(momotest.EnvSoraSignalingURLs + " not set in environment")
	}
	return s
}

func soraConfig(t *testing.T, s momotest.SoraSettings, role string) *momo.SoraConfig {
	t.Helper()
	cfg, err := s.Config(role)
	if err != nil {
		t.Fatalf("sora config: %v", err)
	}
	return cfg
}

func ayameURL() string {
	if u := os.Getenv("TEST_AYAME_SIGNALING_URL"); u != "" {
		return u
	}
	return defaultAyameURL
}

// softwareCodec sets the software encoder and decoder for a video codec.
func softwareCodec(c *momo.CommonOptions, codec string) {
	switch codec {
	case "VP8":
		c.VP8Encoder, c.VP8Decoder = momo.EngineSoftware, momo.EngineSoftware
	case "VP9":
		c.VP9Encoder, c.VP9Decoder = momo.EngineSoftware, momo.EngineSoftware
	case "AV1":
		c.AV1Encoder, c.AV1Decoder = momo.EngineSoftware, momo.EngineSoftware
	}
}

func countType(snap *momo.Snapshot, typ string) int {
	return len(momotest.FindStats(snap, typ, nil))
}
