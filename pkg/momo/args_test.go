package momo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgs_P2PDefaults(t *testing.T) {
	args := BuildArgs(&P2PConfig{})
	assert.Equal(t, []string{"p2p", "--port", "8080"}, args)
}

func TestBuildArgs_CommonOrder(t *testing.T) {
	cfg := &P2PConfig{
		CommonOptions: CommonOptions{
			NoGoogleSTUN:      true,
			FakeCaptureDevice: true,
			HWMJPEGDecoder:    Bool(false),
			LibcameraControls: []LibcameraControl{{Key: "AfMode", Value: "2"}},
			Resolution:        "QVGA",
			Framerate:         15,
			LogLevel:          "verbose",
			H264Encoder:       EngineVPL,
			MetricsPort:       9100,
			ExtraArgs:         []string{"--extra"},
		},
		DocumentRoot: "/srv/html",
		Port:         8081,
	}
	assert.Equal(t, []string{
		"--no-google-stun",
		"--fake-capture-device",
		"--hw-mjpeg-decoder", "0",
		"--libcamera-control", "AfMode", "2",
		"--resolution", "QVGA",
		"--framerate", "15",
		"--log-level", "verbose",
		"--h264-encoder", "vpl",
		"--metrics-port", "9100",
		"p2p",
		"--document-root", "/srv/html",
		"--port", "8081",
		"--extra",
	}, BuildArgs(cfg))
}

func TestBuildArgs_MetricsDisabled(t *testing.T) {
	args := BuildArgs(&P2PConfig{CommonOptions: CommonOptions{MetricsPort: -1}})
	assert.NotContains(t, args, "--metrics-port")
}

func TestBuildArgs_Ayame(t *testing.T) {
	args := BuildArgs(&AyameConfig{
		SignalingURL: "wss://ayame.example/signaling",
		RoomID:       "room",
		Direction:    "sendonly",
	})
	assert.Equal(t, []string{"ayame",
		"--signaling-url", "wss://ayame.example/signaling",
		"--room-id", "room",
		"--direction", "sendonly",
	}, args)
}

func TestBuildArgs_Sora(t *testing.T) {
	args := BuildArgs(&SoraConfig{
		SignalingURLs:  []string{"wss://a/signaling", "wss://b/signaling"},
		ChannelID:      "ch",
		VideoCodecType: "H264",
		Audio:          Bool(false),
		Role:           "sendonly",
		Spotlight:      Bool(true),
		SpotlightNum:   Int(2),
		Metadata:       map[string]any{"b": 1, "a": "x"},
	})
	assert.Equal(t, []string{"sora",
		"--signaling-urls", "wss://a/signaling", "wss://b/signaling",
		"--channel-id", "ch",
		"--video", "true",
		"--audio", "false",
		"--video-codec-type", "H264",
		"--role", "sendonly",
		"--spotlight", "1",
		"--spotlight-number", "2",
		"--metadata", `{"a":"x","b":1}`,
	}, args)
}

func TestBuildArgs_Deterministic(t *testing.T) {
	cfg := &SoraConfig{
		SignalingURLs: []string{"wss://a/signaling"},
		ChannelID:     "ch",
		Metadata:      map[string]any{"z": 1, "y": 2, "x": 3},
	}
	first := BuildArgs(cfg)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, BuildArgs(cfg))
	}
}

func TestSplitSignalingURLs(t *testing.T) {
	assert.Equal(t, []string{"wss://a", "wss://b", "wss://c"}, SplitSignalingURLs(" wss://a,wss://b  wss://c "))
	assert.Empty(t, SplitSignalingURLs(""))
}

func TestQuoteArgs(t *testing.T) {
	assert.Equal(t, `momo --metadata '{"k":"v"}' '' 'it'"'"'s' p2p`,
		QuoteArgs([]string{"momo", "--metadata", `{"k":"v"}`, "", "it's", "p2p"}))
}
