// Package momotest has helpers for tests that drive the media client:
// scoped controller start, a re-executed stub client, mock Ayame and Sora
// signaling servers, Sora test settings and a headless browser.
package momotest

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/thesyncim/momo-e2e/internal/stub"
	"github.com/thesyncim/momo-e2e/pkg/momo"
)

// StubEnv marks a re-executed test binary that should act as the client.
const StubEnv = "MOMO_STUB"

// RunStubIfRequested turns the current process into the stub client when
// StubEnv is set. Call it first thing in TestMain:
//
//	func TestMain(m *testing.M) {
//		momotest.RunStubIfRequested()
//		os.Exit(m.Run())
//	}
func RunStubIfRequested() {
	if os.Getenv(StubEnv) != "1" {
		return
	}
	os.Exit(stub.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// StubOptions make a controller spawn the running test binary as the stub
// client. env entries such as stub.EnvExitCode+"=3" are passed through.
func StubOptions(t testing.TB, env ...string) []momo.Option {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("locate test binary: %v", err)
	}
	return []momo.Option{
		momo.WithExecutable(exe),
		momo.WithEnv(append([]string{StubEnv + "=1"}, env...)...),
		momo.WithPortAllocator(Ports()),
		momo.WithInitialWait(100 * time.Millisecond),
		momo.WithStartupPollInterval(100 * time.Millisecond),
		momo.WithGracePeriod(2 * time.Second),
	}
}

var (
	portsOnce sync.Once
	ports     *momo.PortAllocator
)

// Ports is the allocator shared by every helper in this process. Its base
// is offset by the pid so concurrently running test binaries rarely meet.
func Ports() *momo.PortAllocator {
	portsOnce.Do(func() {
		ports = momo.NewPortAllocator(momo.DefaultPortBase + (os.Getpid()%40)*200)
	})
	return ports
}

// StartController starts a controller for cfg and stops it when the test
// ends. Startup failures fail the test immediately. A zaptest logger is
// installed unless opts supply another one.
func StartController(t testing.TB, cfg momo.Config, opts ...momo.Option) *momo.Controller {
	t.Helper()
	opts = append([]momo.Option{momo.WithLogger(zaptest.NewLogger(t))}, opts...)
	c, err := momo.New(cfg, opts...)
	if err != nil {
		t.Fatalf("momo.New: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Stop(); err != nil {
			t.Errorf("stop momo: %v", err)
		}
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start momo: %v", err)
	}
	return c
}
