//go:build e2e

package e2e

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/thesyncim/momo-e2e/pkg/momo"
)

// engineCase is a codec sent with a hardware encoder and the
// encoderImplementation the client reports for it.
type engineCase struct {
	codec string
	impl  string
}

// requireEnv skips the test unless the machine-capability variable is set.
func requireEnv(t *testing.T, name string) {
	t.Helper()
	if os.Getenv(name) == "" {
		t.Skip(name + " not set in environment")
	}
}

// setEncoder selects engine for codec's encoder.
func setEncoder(c *momo.CommonOptions, codec string, engine momo.Engine) {
	switch codec {
	case "VP8":
		c.VP8Encoder = engine
	case "VP9":
		c.VP9Encoder = engine
	case "AV1":
		c.AV1Encoder = engine
	case "H264":
		c.H264Encoder = engine
	case "H265":
		c.H265Encoder = engine
	}
}

// runEngineCases sends each codec with engine and checks the reported
// encoder, both for a single stream and for three simulcast layers.
func runEngineCases(t *testing.T, engine momo.Engine, cases []engineCase) {
	s := soraSettings(t)
	for _, tc := range cases {
		t.Run(tc.codec, func(t *testing.T) {
			cfg := soraSendonly(t, s)
			cfg.VideoCodecType = tc.codec
			setEncoder(&cfg.CommonOptions, tc.codec, engine)
			c := start(t, cfg, momo.WithInitialWait(10*time.Second))
			waitConnected(t, "sender", c)

			snap, err := c.WaitForStats(t.Context(), []momo.WaitCondition{
				{"type": "outbound-rtp", "kind": "video", "encoderImplementation": tc.impl},
			}, momo.WaitOptions{Timeout: 10 * time.Second})
			if err != nil {
				t.Fatalf("wait for %s encoder: %v", tc.impl, err)
			}
			for _, typ := range []string{"peer-connection", "transport", "codec", "outbound-rtp"} {
				if countType(snap, typ) == 0 {
					t.Errorf("missing %s stats", typ)
				}
			}
			checkCodecs(t, "sender", snap, tc.codec)
		})
		t.Run(tc.codec+"/simulcast", func(t *testing.T) {
			cfg := soraSendonly(t, s)
			cfg.VideoCodecType = tc.codec
			cfg.Simulcast = momo.Bool(true)
			cfg.Resolution = "960x540"
			cfg.VideoBitRate = momo.Int(3000)
			setEncoder(&cfg.CommonOptions, tc.codec, engine)
			c := start(t, cfg, momo.WithInitialWait(10*time.Second))
			waitConnected(t, "simulcast sender", c)

			var conds []momo.WaitCondition
			for _, rid := range []string{"r0", "r1", "r2"} {
				conds = append(conds, momo.WaitCondition{"type": "outbound-rtp", "kind": "video", "rid": rid})
			}
			snap, err := c.WaitForStats(t.Context(), conds, momo.WaitOptions{Timeout: 15 * time.Second, Settle: 5 * time.Second})
			if err != nil {
				t.Fatalf("wait for simulcast layers: %v", err)
			}
			for _, cond := range conds {
				layer, _ := snap.Find(cond)
				impl, _ := layer.String("encoderImplementation")
				if !strings.Contains(impl, "SimulcastEncoderAdapter") || !strings.Contains(impl, tc.impl) {
					t.Errorf("rid %v: encoderImplementation = %q, want SimulcastEncoderAdapter with %s", cond["rid"], impl, tc.impl)
				}
			}
		})
	}
}

func TestSora_IntelVPL(t *testing.T) {
	requireEnv(t, "INTEL_VPL")
	runEngineCases(t, momo.EngineVPL, []engineCase{
		{"VP9", "libvpl"},
		{"AV1", "libvpl"},
		{"H264", "libvpl"},
		{"H265", "libvpl"},
	})
}

func TestSora_NvidiaVideoCodec(t *testing.T) {
	requireEnv(t, "NVIDIA_VIDEO_CODEC")
	runEngineCases(t, momo.EngineNVIDIA, []engineCase{
		{"AV1", "NvCodec"},
		{"H264", "NvCodec"},
		{"H265", "NvCodec"},
	})
}

func TestSora_AppleVideoToolbox(t *testing.T) {
	requireEnv(t, "APPLE_VIDEO_TOOLBOX")
	runEngineCases(t, momo.EngineVideoToolbox, []engineCase{
		{"H264", "VideoToolbox"},
		{"H265", "VideoToolbox"},
	})
}

func TestSora_OpenH264(t *testing.T) {
	requireEnv(t, "OPENH264_PATH")
	s := soraSettings(t)
	cfg := soraSendonly(t, s)
	cfg.VideoCodecType = "H264"
	cfg.H264Encoder = momo.EngineSoftware
	cfg.OpenH264 = os.Getenv("OPENH264_PATH")
	c := start(t, cfg)
	waitConnected(t, "openh264 sender", c)

	snap, err := c.WaitForStats(t.Context(), []momo.WaitCondition{
		{"type": "outbound-rtp", "kind": "video", "encoderImplementation": "OpenH264"},
	}, momo.WaitOptions{Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("wait for OpenH264: %v", err)
	}
	video, _ := snap.Find(map[string]any{"type": "outbound-rtp", "kind": "video"})
	for _, key := range []string{"packetsSent", "bytesSent", "framesEncoded"} {
		if n, _ := video.Number(key); n <= 0 {
			t.Errorf("%s = %v, want > 0", key, n)
		}
	}
}

func TestSora_RaspberryPi(t *testing.T) {
	requireEnv(t, "RASPBERRY_PI")
	s := soraSettings(t)
	for _, tc := range []engineCase{
		{"VP8", "libvpx"},
		{"VP9", "libvpx"},
		{"AV1", "libaom"},
		{"H264", "V4L2M2M H264"},
	} {
		t.Run(tc.codec, func(t *testing.T) {
			cfg := soraConfig(t, s, "sendonly")
			cfg.UseLibcamera = true
			cfg.Video = momo.Bool(true)
			cfg.Audio = momo.Bool(false)
			cfg.VideoCodecType = tc.codec
			c := start(t, cfg, momo.WithInitialWait(10*time.Second))
			waitConnected(t, "sender", c)

			if _, err := c.WaitForStats(t.Context(), []momo.WaitCondition{
				{"type": "outbound-rtp", "kind": "video", "encoderImplementation": tc.impl},
			}, momo.WaitOptions{Timeout: 10 * time.Second}); err != nil {
				t.Fatalf("wait for %s: %v", tc.impl, err)
			}
		})
	}
}

func TestSora_ForceNV12(t *testing.T) {
	s := soraSettings(t)
	cfg := soraSendonly(t, s)
	cfg.ForceNV12 = true
	c := start(t, cfg)
	waitConnected(t, "nv12 sender", c)

	snap, err := c.WaitForStats(t.Context(), []momo.WaitCondition{
		{"type": "outbound-rtp", "kind": "video"},
	}, momo.WaitOptions{Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("wait for video outbound-rtp: %v", err)
	}
	video, _ := snap.Find(map[string]any{"type": "outbound-rtp", "kind": "video"})
	if n, _ := video.Number("packetsSent"); n <= 0 {
		t.Errorf("packetsSent = %v", n)
	}
	if n, _ := video.Number("bytesSent"); n <= 0 {
		t.Errorf("bytesSent = %v", n)
	}
}
