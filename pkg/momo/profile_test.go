package momo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProfile_Sora(t *testing.T) {
	p, err := DecodeProfile(strings.NewReader(`
mode: sora
fake_capture_device: true
resolution: QVGA
signaling_urls: wss://a/signaling, wss://b/signaling
channel_id: ch
role: sendonly
data_channel_signaling: none
ignore_disconnect_websocket: true
metadata:
  access_token: tok
`))
	require.NoError(t, err)

	cfg, err := p.Config()
	require.NoError(t, err)
	sora, ok := cfg.(*SoraConfig)
	require.True(t, ok)
	assert.Equal(t, []string{"wss://a/signaling", "wss://b/signaling"}, sora.SignalingURLs)
	assert.Equal(t, "none", sora.DataChannelSignaling)
	assert.Equal(t, "true", sora.IgnoreDisconnectWebsocket)
	assert.Equal(t, "QVGA", sora.Resolution)
	assert.True(t, sora.FakeCaptureDevice)
	assert.Equal(t, map[string]any{"access_token": "tok"}, sora.Metadata)
}

func TestDecodeProfile_RejectsUnknownKeys(t *testing.T) {
	_, err := DecodeProfile(strings.NewReader("mode: p2p\nresolutoin: VGA\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolutoin")
}

func TestDecodeProfile_RejectsUnknownMode(t *testing.T) {
	_, err := DecodeProfile(strings.NewReader("mode: test\n"))
	require.Error(t, err)
}

func TestProfile_ValidateMismatchedOptions(t *testing.T) {
	p, err := ProfileFromMap(ModeP2P, map[string]any{
		"channel_id":    "ch",
		"room_id":       "room",
		"resolution":    "VGA",
		"role":          "sendonly",
		"document_root": "/srv",
	})
	require.NoError(t, err)

	_, err = p.Config()
	var optErr *OptionsError
	require.True(t, errors.As(err, &optErr))
	assert.Equal(t, ModeP2P, optErr.Mode)
	assert.Equal(t, []string{"channel_id", "role", "room_id"}, optErr.Options)
	assert.Equal(t, []Mode{ModeAyame, ModeSora}, optErr.Owners)
	assert.Equal(t,
		"invalid options specified for P2P mode: channel_id, role, room_id\nthese options are only for ayame/sora mode",
		err.Error())
}

func TestProfile_CommonOptionsValidEverywhere(t *testing.T) {
	for _, m := range Modes {
		p, err := ProfileFromMap(m, map[string]any{"resolution": "QVGA", "framerate": 15, "metrics_port": 9200})
		require.NoError(t, err)
		cfg, err := p.Config()
		require.NoError(t, err, m)
		assert.Equal(t, m, cfg.Mode())
		assert.Equal(t, 9200, cfg.Common().MetricsPort)
	}
}

func TestProfile_PortAcceptedInEveryMode(t *testing.T) {
	p, err := ProfileFromMap(ModeAyame, map[string]any{
		"port":                8081,
		"ayame_signaling_url": "wss://ayame/signaling",
		"room_id":             "r",
	})
	require.NoError(t, err)
	cfg, err := p.Config()
	require.NoError(t, err)
	assert.NotContains(t, BuildArgs(cfg), "--port")

	p, err = ProfileFromMap(ModeP2P, map[string]any{"port": 8081})
	require.NoError(t, err)
	cfg, err = p.Config()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.(*P2PConfig).Port)
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ayame.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: ayame
ayame_signaling_url: wss://ayame/signaling
room_id: r
direction: recvonly
libcamera_control:
  - [AfMode, "2"]
`), 0o600))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	cfg, err := p.Config()
	require.NoError(t, err)
	ayame := cfg.(*AyameConfig)
	assert.Equal(t, "wss://ayame/signaling", ayame.SignalingURL)
	assert.Equal(t, "recvonly", ayame.Direction)
	assert.Equal(t, []LibcameraControl{{Key: "AfMode", Value: "2"}}, ayame.LibcameraControls)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("sora")
	require.NoError(t, err)
	assert.Equal(t, "Sora", m.DisplayName())
	_, err = ParseMode("SORA")
	assert.Error(t, err)
}
