// Package stub is a stand-in for the Momo media client. It accepts the
// client's command line, serves the same /metrics endpoint and speaks the
// P2P, Ayame and Sora signaling protocols with a pion peer connection
// sending synthetic media.
package stub

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Failure injection knobs read from the environment.
const (
	EnvExitCode      = "MOMO_STUB_EXIT_CODE"      // exit immediately with this code
	EnvMetricsDelay  = "MOMO_STUB_METRICS_DELAY"  // delay before the metrics server starts, e.g. "3s"
	EnvIgnoreSIGTERM = "MOMO_STUB_IGNORE_SIGTERM" // "1" ignores SIGTERM
)

const (
	exitFailure = 1
	exitUsage   = 2
)

// Run executes the client with args (without the program name) and
// returns the process exit code. It returns when ctx is cancelled, on
// SIGINT or SIGTERM, or when the signaling front end fails.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := ParseArgs(args)
	if err != nil {
		fmt.Fprintln(stderr, "momo:", err)
		return exitUsage
	}
	if o.Version {
		fmt.Fprintln(stdout, ClientName())
		fmt.Fprintln(stdout, "WebRTC:", LibWebRTCName())
		fmt.Fprintln(stdout, "Environment:", EnvironmentName())
		return 0
	}
	if o.VideoCodecEngines {
		printEngines(stdout)
		return 0
	}

	log := newLogger(o.LogLevel, stderr)
	defer func() { _ = log.Sync() }()

	if v := os.Getenv(EnvExitCode); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			code = exitFailure
		}
		log.Error("exiting on request", zap.Int("code", code))
		return code
	}

	sigs := []os.Signal{os.Interrupt, syscall.SIGTERM}
	if os.Getenv(EnvIgnoreSIGTERM) == "1" {
		signal.Ignore(syscall.SIGTERM)
		sigs = sigs[:1]
	}
	ctx, stop := signal.NotifyContext(ctx, sigs...)
	defer stop()

	peers := newPeerSet()
	defer peers.closeAll()

	var front interface{ run(context.Context) error }
	switch o.Mode {
	case "p2p":
		front = newP2PServer(o, peers, log)
	case "ayame":
		front, err = newAyameClient(o, peers, log)
	case "sora":
		front, err = newSoraClient(o, peers, log)
	}
	if err != nil {
		log.Error("invalid options", zap.Error(err))
		return exitUsage
	}

	if o.MetricsPort >= 0 {
		if d, err := time.ParseDuration(os.Getenv(EnvMetricsDelay)); err == nil && d > 0 {
			go func() {
				select {
				case <-ctx.Done():
				case <-time.After(d):
					startMetrics(ctx, o, peers, log)
				}
			}()
		} else if !startMetrics(ctx, o, peers, log) {
			return exitFailure
		}
	}

	log.Info("started", zap.String("mode", o.Mode), zap.Int("pid", os.Getpid()))
	if err := front.run(ctx); err != nil {
		log.Error("signaling failed", zap.Error(err))
		return exitFailure
	}
	log.Info("shutting down")
	return 0
}

// startMetrics serves /metrics until ctx is done.
func startMetrics(ctx context.Context, o *Options, peers *peerSet, log *zap.Logger) bool {
	host := "127.0.0.1"
	if o.MetricsAllowExternalIP {
		host = "0.0.0.0"
	}
	cfg := DefaultMetricsConfig()
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(o.MetricsPort))
	cfg.Logger = log.Named("metrics")
	srv := NewMetricsServer(cfg, peers)
	if _, err := srv.Start(); err != nil {
		log.Error("start metrics server", zap.Error(err))
		return false
	}
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	return true
}

// newLogger maps the client's log levels onto zap: verbose, info,
// warning, error and none.
func newLogger(level string, w io.Writer) *zap.Logger {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "none":
		return zap.NewNop()
	case "verbose", "debug":
		lvl = zapcore.DebugLevel
	case "warning", "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core).Named("momo")
}

func printEngines(w io.Writer) {
	codecs := map[string][]string{
		"VP8":  {"libvpx"},
		"VP9":  {"libvpx"},
		"AV1":  {"libaom", "dav1d"},
		"H264": {"OpenH264", "FFmpeg"},
		"H265": {},
	}
	names := make([]string, 0, len(codecs))
	for k := range codecs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s:\n", name)
		if len(codecs[name]) == 0 {
			fmt.Fprintln(w, "  (none)")
		}
		for _, impl := range codecs[name] {
			fmt.Fprintf(w, "  - %s [software]\n", impl)
		}
	}
}
