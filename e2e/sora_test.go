//go:build e2e

package e2e

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/thesyncim/momo-e2e/pkg/momo"
	"github.com/thesyncim/momo-e2e/pkg/momotest"
)

var soraCodecs = []struct {
	codec   string
	encoder string
	decoder string
}{
	{"VP8", "libvpx", "libvpx"},
	{"VP9", "libvpx", "libvpx"},
	{"AV1", "libaom", "dav1d"},
}

func soraSendonly(t *testing.T, s momotest.SoraSettings) *momo.SoraConfig {
	cfg := soraConfig(t, s, "sendonly")
	cfg.FakeCaptureDevice = true
	cfg.Video = momo.Bool(true)
	cfg.Audio = momo.Bool(true)
	return cfg
}

// peerOf copies cfg onto the same channel with a different role.
func peerOf(cfg *momo.SoraConfig, role string) *momo.SoraConfig {
	c := *cfg
	c.Role = role
	c.CommonOptions = momo.CommonOptions{}
	return &c
}

func TestSora_MetricsEndpoint(t *testing.T) {
	s := soraSettings(t)
	c := start(t, soraSendonly(t, s))

	snap, err := c.Metrics(t.Context())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if snap.Version == "" || snap.LibWebRTC == "" || snap.Environment == "" {
		t.Errorf("missing version fields: %+v", snap)
	}
	if len(snap.Stats) == 0 {
		t.Error("sora stats should not be empty once ready")
	}

	resp, err := c.HTTPClient().Get(strings.TrimSuffix(c.MetricsURL(), "/metrics") + "/invalid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSora_SendonlyRecvonlyPair(t *testing.T) {
	s := soraSettings(t)
	for _, tc := range soraCodecs {
		t.Run(tc.codec, func(t *testing.T) {
			send := soraSendonly(t, s)
			send.VideoCodecType = tc.codec
			softwareCodec(&send.CommonOptions, tc.codec)
			recv := peerOf(send, "recvonly")
			softwareCodec(&recv.CommonOptions, tc.codec)

			sender := start(t, send, momo.WithInitialWait(10*time.Second))
			receiver := start(t, recv)
			waitConnected(t, "sender", sender)
			waitConnected(t, "receiver", receiver)

			sent, err := sender.WaitForStats(t.Context(), []momo.WaitCondition{
				{"type": "outbound-rtp", "encoderImplementation": tc.encoder},
			}, momo.DefaultWaitOptions())
			if err != nil {
				t.Fatalf("sender: %v", err)
			}
			received, err := receiver.WaitForStats(t.Context(), []momo.WaitCondition{
				{"type": "inbound-rtp", "decoderImplementation": tc.decoder},
			}, momo.DefaultWaitOptions())
			if err != nil {
				t.Fatalf("receiver: %v", err)
			}

			checkCodecs(t, "sender", sent, tc.codec)
			checkCodecs(t, "receiver", received, tc.codec)
			checkFlow(t, "sender", sent, "outbound-rtp", "packetsSent", "bytesSent", "encoderImplementation", tc.encoder)
			checkFlow(t, "receiver", received, "inbound-rtp", "packetsReceived", "bytesReceived", "decoderImplementation", tc.decoder)
		})
	}
}

func TestSora_Sendrecv(t *testing.T) {
	s := soraSettings(t)
	for _, tc := range soraCodecs {
		t.Run(tc.codec, func(t *testing.T) {
			cfg := soraConfig(t, s, "sendrecv")
			cfg.FakeCaptureDevice = true
			cfg.VideoCodecType = tc.codec
			softwareCodec(&cfg.CommonOptions, tc.codec)
			other := *cfg

			c1 := start(t, cfg)
			c2 := start(t, &other)
			waitConnected(t, "client1", c1)
			waitConnected(t, "client2", c2)

			for name, c := range map[string]*momo.Controller{"client1": c1, "client2": c2} {
				snap, err := c.WaitForStats(t.Context(), []momo.WaitCondition{
					{"type": "outbound-rtp", "kind": "video", "encoderImplementation": tc.encoder},
					{"type": "inbound-rtp", "kind": "video", "decoderImplementation": tc.decoder},
				}, momo.DefaultWaitOptions())
				if err != nil {
					t.Fatalf("%s: %v", name, err)
				}
				checkCodecs(t, name, snap, tc.codec)
			}
		})
	}
}

func TestSora_Simulcast(t *testing.T) {
	s := soraSettings(t)
	for _, tc := range soraCodecs {
		t.Run(tc.codec, func(t *testing.T) {
			cfg := soraSendonly(t, s)
			cfg.VideoCodecType = tc.codec
			cfg.Simulcast = momo.Bool(true)
			cfg.Resolution = "960x540"
			cfg.Framerate = 15
			cfg.VideoBitRate = momo.Int(3000)
			softwareCodec(&cfg.CommonOptions, tc.codec)
			c := start(t, cfg)
			waitConnected(t, "simulcast sender", c)

			adapter := "SimulcastEncoderAdapter (" + strings.Repeat(tc.encoder+", ", 2) + tc.encoder + ")"
			var conds []momo.WaitCondition
			for _, rid := range []string{"r0", "r1", "r2"} {
				conds = append(conds, momo.WaitCondition{"type": "outbound-rtp", "rid": rid, "encoderImplementation": adapter})
			}
			snap, err := c.WaitForStats(t.Context(), conds, momo.WaitOptions{Timeout: 15 * time.Second, Settle: 10 * time.Second})
			if err != nil {
				t.Fatalf("wait for simulcast layers: %v", err)
			}
			for _, typ := range []string{"peer-connection", "transport", "codec", "outbound-rtp"} {
				if countType(snap, typ) == 0 {
					t.Errorf("missing %s stats", typ)
				}
			}
			opus := momotest.FindStats(snap, "codec", map[string]any{"mimeType": "audio/opus"})
			if len(opus) != 1 {
				t.Fatalf("audio codecs = %d, want 1", len(opus))
			}
			if rate, _ := opus[0].Number("clockRate"); rate != 48000 {
				t.Errorf("opus clockRate = %v", rate)
			}
			if n := len(momotest.FindStats(snap, "codec", map[string]any{"mimeType": "video/" + tc.codec})); n != 1 {
				t.Errorf("video codecs = %d, want 1", n)
			}
		})
	}
}

func TestSora_MultipleSendonlyClients(t *testing.T) {
	s := soraSettings(t)
	first := soraSendonly(t, s)
	second := *first

	for i, c := range []*momo.Controller{start(t, first), start(t, &second)} {
		if _, err := c.Metrics(t.Context()); err != nil {
			t.Errorf("sender %d: %v", i+1, err)
		}
	}
}

// checkCodecs expects an opus audio codec and the given video codec.
func checkCodecs(t *testing.T, name string, snap *momo.Snapshot, codec string) {
	t.Helper()
	codecs := momotest.FindStats(snap, "codec", nil)
	if len(codecs) < 2 {
		t.Fatalf("%s: %d codecs, want audio and video", name, len(codecs))
	}
	var video, audio string
	for _, c := range codecs {
		mime, _ := c.String("mimeType")
		switch {
		case strings.HasPrefix(mime, "video/") && video == "":
			video = mime
		case strings.HasPrefix(mime, "audio/") && audio == "":
			audio = mime
		}
	}
	if video != "video/"+codec {
		t.Errorf("%s: video codec = %q, want video/%s", name, video, codec)
	}
	if audio != "audio/opus" {
		t.Errorf("%s: audio codec = %q, want audio/opus", name, audio)
	}
}

// checkFlow expects exactly an audio and a video RTP stream of typ with
// positive counters, the video one using impl.
func checkFlow(t *testing.T, name string, snap *momo.Snapshot, typ, packets, bytes, implKey, impl string) {
	t.Helper()
	streams := momotest.FindStats(snap, typ, nil)
	if len(streams) != 2 {
		t.Fatalf("%s: %d %s stats, want 2 (audio and video)", name, len(streams), typ)
	}
	for _, st := range streams {
		if n, _ := st.Number(packets); n <= 0 {
			t.Errorf("%s %s %s: %s = %v", name, typ, st["kind"], packets, n)
		}
		if n, _ := st.Number(bytes); n <= 0 {
			t.Errorf("%s %s %s: %s = %v", name, typ, st["kind"], bytes, n)
		}
		if st["kind"] == "video" {
			if got, _ := st.String(implKey); got != impl {
				t.Errorf("%s: %s = %q, want %q", name, implKey, got, impl)
			}
		}
	}
}
