package momo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const defaultP2PPort = 8080

type argList []string

func (a *argList) flag(name string, on bool) {
	if on {
		*a = append(*a, name)
	}
}

func (a *argList) str(name, value string) {
	if value != "" {
		*a = append(*a, name, value)
	}
}

func (a *argList) engine(name string, value Engine) {
	a.str(name, string(value))
}

func (a *argList) positive(name string, value int) {
	if value > 0 {
		*a = append(*a, name, strconv.Itoa(value))
	}
}

func (a *argList) optInt(name string, value *int) {
	if value != nil {
		*a = append(*a, name, strconv.Itoa(*value))
	}
}

// BuildArgs turns cfg into the client's argument vector: common flags
// first, then the mode token, then mode flags, then ExtraArgs. The order
// is fixed so the same config always yields the same command line.
// Metadata that does not encode as JSON is left out; New rejects it.
func BuildArgs(cfg Config) []string {
	var a argList
	c := cfg.Common()

	a.flag("--no-google-stun", c.NoGoogleSTUN)
	a.flag("--no-video-input-device", c.NoVideoDevice)
	a.flag("--no-audio-device", c.NoAudioDevice)
	a.flag("--fake-capture-device", c.FakeCaptureDevice)
	a.flag("--force-i420", c.ForceI420)
	a.flag("--force-yuy2", c.ForceYUY2)
	a.flag("--force-nv12", c.ForceNV12)
	if c.HWMJPEGDecoder != nil {
		a = append(a, "--hw-mjpeg-decoder", boolDigit(*c.HWMJPEGDecoder))
	}
	a.flag("--use-libcamera", c.UseLibcamera)
	a.flag("--use-libcamera-native", c.UseLibcameraNative)
	for _, ctl := range c.LibcameraControls {
		a = append(a, "--libcamera-control", ctl.Key, ctl.Value)
	}

	a.str("--video-input-device", c.VideoDevice)
	a.str("--resolution", c.Resolution)
	a.positive("--framerate", c.Framerate)
	a.flag("--fixed-resolution", c.FixedResolution)
	a.str("--priority", c.Priority)

	a.flag("--use-sdl", c.UseSDL)
	a.positive("--window-width", c.WindowWidth)
	a.positive("--window-height", c.WindowHeight)
	a.flag("--fullscreen", c.Fullscreen)

	a.flag("--version", c.Version)
	a.flag("--insecure", c.Insecure)
	a.str("--log-level", c.LogLevel)
	a.flag("--screen-capture", c.ScreenCapture)

	a.flag("--disable-echo-cancellation", c.DisableEchoCancellation)
	a.flag("--disable-auto-gain-control", c.DisableAutoGainControl)
	a.flag("--disable-noise-suppression", c.DisableNoiseSuppression)
	a.flag("--disable-highpass-filter", c.DisableHighpassFilter)

	a.flag("--video-codec-engines", c.VideoCodecEngines)
	a.engine("--vp8-encoder", c.VP8Encoder)
	a.engine("--vp8-decoder", c.VP8Decoder)
	a.engine("--vp9-encoder", c.VP9Encoder)
	a.engine("--vp9-decoder", c.VP9Decoder)
	a.engine("--av1-encoder", c.AV1Encoder)
	a.engine("--av1-decoder", c.AV1Decoder)
	a.engine("--h264-encoder", c.H264Encoder)
	a.engine("--h264-decoder", c.H264Decoder)
	a.engine("--h265-encoder", c.H265Encoder)
	a.engine("--h265-decoder", c.H265Decoder)
	a.str("--openh264", c.OpenH264)

	a.str("--serial", c.Serial)
	if c.MetricsPort > 0 {
		a = append(a, "--metrics-port", strconv.Itoa(c.MetricsPort))
	}
	a.flag("--metrics-allow-external-ip", c.MetricsAllowExternalIP)
	a.str("--client-cert", c.ClientCert)
	a.str("--client-key", c.ClientKey)
	a.str("--proxy-url", c.ProxyURL)
	a.str("--proxy-username", c.ProxyUsername)
	a.str("--proxy-password", c.ProxyPassword)

	a = append(a, string(cfg.Mode()))
	a = append(a, cfg.modeArgs()...)
	a = append(a, c.ExtraArgs...)
	return a
}

func (cfg *P2PConfig) modeArgs() []string {
	var a argList
	a.str("--document-root", cfg.DocumentRoot)
	port := cfg.Port
	if port == 0 {
		port = defaultP2PPort
	}
	a = append(a, "--port", strconv.Itoa(port))
	return a
}

func (cfg *AyameConfig) modeArgs() []string {
	var a argList
	a.str("--signaling-url", cfg.SignalingURL)
	a.str("--room-id", cfg.RoomID)
	a.str("--client-id", cfg.ClientID)
	a.str("--signaling-key", cfg.SignalingKey)
	a.str("--direction", cfg.Direction)
	a.str("--video-codec-type", cfg.VideoCodecType)
	a.str("--audio-codec-type", cfg.AudioCodecType)
	return a
}

func (cfg *SoraConfig) modeArgs() []string {
	var a argList
	if len(cfg.SignalingURLs) > 0 {
		a = append(a, "--signaling-urls")
		a = append(a, cfg.SignalingURLs...)
	}
	a.str("--channel-id", cfg.ChannelID)
	a.flag("--auto", cfg.Auto)
	a = append(a, "--video", boolWord(cfg.Video, true))
	a = append(a, "--audio", boolWord(cfg.Audio, true))
	a.str("--video-codec-type", cfg.VideoCodecType)
	a.str("--audio-codec-type", cfg.AudioCodecType)
	a.optInt("--video-bit-rate", cfg.VideoBitRate)
	a.optInt("--audio-bit-rate", cfg.AudioBitRate)
	a.str("--role", cfg.Role)
	if cfg.Spotlight != nil {
		a = append(a, "--spotlight", boolDigit(*cfg.Spotlight))
	}
	a.optInt("--spotlight-number", cfg.SpotlightNum)
	a.optInt("--port", cfg.Port)
	if cfg.Simulcast != nil {
		a = append(a, "--simulcast", boolWord(cfg.Simulcast, false))
	}
	a.str("--data-channel-signaling", cfg.DataChannelSignaling)
	a.optInt("--data-channel-signaling-timeout", cfg.DataChannelSignalingTimeout)
	a.str("--ignore-disconnect-websocket", cfg.IgnoreDisconnectWebsocket)
	a.optInt("--disconnect-wait-timeout", cfg.DisconnectWaitTimeout)
	if len(cfg.Metadata) > 0 {
		if m, err := encodeMetadata(cfg.Metadata); err == nil {
			a = append(a, "--metadata", m)
		}
	}
	return a
}

// encodeMetadata renders the --metadata value. Map keys marshal sorted,
// so the result is deterministic.
func encodeMetadata(m map[string]any) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("momo: encode sora metadata: %w", err)
	}
	return string(b), nil
}

// SplitSignalingURLs accepts URLs separated by spaces or commas, the form
// used by TEST_SORA_MODE_SIGNALING_URLS.
func SplitSignalingURLs(s string) []string {
	return strings.Fields(strings.ReplaceAll(s, ",", " "))
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func boolWord(b *bool, def bool) string {
	v := def
	if b != nil {
		v = *b
	}
	return strconv.FormatBool(v)
}

// QuoteArgs renders argv as a shell-pasteable command line.
func QuoteArgs(argv []string) string {
	quoted := make([]string, len(argv))
	for i, s := range argv {
		quoted[i] = shellQuote(s)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("@%+=:,./-_", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
