package stub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/thesyncim/momo-e2e/internal/rtc"
)

// Options is the parsed command line.
type Options struct {
	NoGoogleSTUN      bool
	NoVideoDevice     bool
	NoAudioDevice     bool
	FakeCaptureDevice bool
	VideoCodecEngines bool
	Version           bool
	Insecure          bool
	LogLevel          string
	Resolution        string
	Framerate         int

	Encoders map[string]string // codec -> engine, e.g. "H264" -> "vpl"
	Decoders map[string]string
	OpenH264 string

	LibcameraControls [][2]string

	MetricsPort            int
	MetricsAllowExternalIP bool

	Mode  string
	P2P   P2POptions
	Ayame AyameOptions
	Sora  SoraOptions
}

// P2POptions are the p2p mode flags.
type P2POptions struct {
	DocumentRoot string
	Port         int
}

// AyameOptions are the ayame mode flags.
type AyameOptions struct {
	SignalingURL   string
	RoomID         string
	ClientID       string
	SignalingKey   string
	Direction      string
	VideoCodecType string
	AudioCodecType string
}

// SoraOptions are the sora mode flags.
type SoraOptions struct {
	SignalingURLs             []string
	ChannelID                 string
	Auto                      bool
	Video                     bool
	Audio                     bool
	VideoCodecType            string
	AudioCodecType            string
	VideoBitRate              int
	AudioBitRate              int
	Role                      string
	Spotlight                 *bool
	SpotlightNumber           int
	Port                      int
	Simulcast                 bool
	DataChannelSignaling      string
	IgnoreDisconnectWebsocket string
	Metadata                  map[string]any
}

var codecNames = []string{"vp8", "vp9", "av1", "h264", "h265"}

// ParseArgs parses argv (without the program name). Flags before the mode
// token are common; flags after it belong to the mode. --version needs no
// mode.
func ParseArgs(argv []string) (*Options, error) {
	argv = normalize(argv)
	o := &Options{
		Encoders:    map[string]string{},
		Decoders:    map[string]string{},
		MetricsPort: -1,
	}

	common := pflag.NewFlagSet("momo", pflag.ContinueOnError)
	common.SetOutput(io.Discard)
	common.SetInterspersed(false)
	common.BoolVar(&o.NoGoogleSTUN, "no-google-stun", false, "")
	common.BoolVar(&o.NoVideoDevice, "no-video-input-device", false, "")
	common.BoolVar(&o.NoAudioDevice, "no-audio-device", false, "")
	common.BoolVar(&o.FakeCaptureDevice, "fake-capture-device", false, "")
	common.BoolVar(&o.VideoCodecEngines, "video-codec-engines", false, "")
	common.BoolVar(&o.Version, "version", false, "")
	common.BoolVar(&o.Insecure, "insecure", false, "")
	common.StringVar(&o.LogLevel, "log-level", "info", "")
	common.StringVar(&o.Resolution, "resolution", "VGA", "")
	common.IntVar(&o.Framerate, "framerate", 30, "")
	common.StringVar(&o.OpenH264, "openh264", "", "")
	common.IntVar(&o.MetricsPort, "metrics-port", -1, "")
	common.BoolVar(&o.MetricsAllowExternalIP, "metrics-allow-external-ip", false, "")
	libcamera := common.StringArray("libcamera-control", nil, "")

	encoders := map[string]*string{}
	decoders := map[string]*string{}
	for _, c := range codecNames {
		encoders[c] = common.String(c+"-encoder", "", "")
		decoders[c] = common.String(c+"-decoder", "", "")
	}

	// Accepted and ignored: they only affect capture and rendering.
	for _, name := range []string{"force-i420", "force-yuy2", "force-nv12", "use-libcamera",
		"use-libcamera-native", "fixed-resolution", "use-sdl", "fullscreen", "screen-capture",
		"disable-echo-cancellation", "disable-auto-gain-control", "disable-noise-suppression",
		"disable-highpass-filter"} {
		common.Bool(name, false, "")
	}
	for _, name := range []string{"hw-mjpeg-decoder", "video-input-device", "priority", "serial",
		"client-cert", "client-key", "proxy-url", "proxy-username", "proxy-password"} {
		common.String(name, "", "")
	}
	common.Int("window-width", 0, "")
	common.Int("window-height", 0, "")

	if err := common.Parse(argv); err != nil {
		return nil, err
	}
	for c, v := range encoders {
		if *v != "" {
			o.Encoders[strings.ToUpper(c)] = *v
		}
	}
	for c, v := range decoders {
		if *v != "" {
			o.Decoders[strings.ToUpper(c)] = *v
		}
	}
	for _, kv := range *libcamera {
		k, v, _ := strings.Cut(kv, "=")
		o.LibcameraControls = append(o.LibcameraControls, [2]string{k, v})
	}
	if o.Version || o.VideoCodecEngines {
		return o, nil
	}

	rest := common.Args()
	if len(rest) == 0 {
		return nil, errors.New("a subcommand is required: p2p, ayame or sora")
	}
	o.Mode = rest[0]
	var err error
	switch o.Mode {
	case "p2p":
		err = o.parseP2P(rest[1:])
	case "ayame":
		err = o.parseAyame(rest[1:])
	case "sora":
		err = o.parseSora(rest[1:])
	default:
		err = fmt.Errorf("unknown subcommand %q", o.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.Mode, err)
	}
	return o, nil
}

func (o *Options) parseP2P(argv []string) error {
	fs := modeFlagSet("p2p")
	fs.StringVar(&o.P2P.DocumentRoot, "document-root", "", "")
	fs.IntVar(&o.P2P.Port, "port", 8080, "")
	return parseMode(fs, argv)
}

func (o *Options) parseAyame(argv []string) error {
	a := &o.Ayame
	fs := modeFlagSet("ayame")
	fs.StringVar(&a.SignalingURL, "signaling-url", "", "")
	fs.StringVar(&a.RoomID, "room-id", "", "")
	fs.StringVar(&a.ClientID, "client-id", "", "")
	fs.StringVar(&a.SignalingKey, "signaling-key", "", "")
	fs.StringVar(&a.Direction, "direction", "sendrecv", "")
	fs.StringVar(&a.VideoCodecType, "video-codec-type", "", "")
	fs.StringVar(&a.AudioCodecType, "audio-codec-type", "", "")
	if err := parseMode(fs, argv); err != nil {
		return err
	}
	if a.SignalingURL == "" || a.RoomID == "" {
		return errors.New("--signaling-url and --room-id are required")
	}
	return checkCodecs(a.VideoCodecType, a.AudioCodecType)
}

func (o *Options) parseSora(argv []string) error {
	s := &o.Sora
	fs := modeFlagSet("sora")
	fs.StringSliceVar(&s.SignalingURLs, "signaling-urls", nil, "")
	fs.StringVar(&s.ChannelID, "channel-id", "", "")
	fs.BoolVar(&s.Auto, "auto", false, "")
	video := fs.String("video", "true", "")
	audio := fs.String("audio", "true", "")
	fs.StringVar(&s.VideoCodecType, "video-codec-type", "", "")
	fs.StringVar(&s.AudioCodecType, "audio-codec-type", "", "")
	fs.IntVar(&s.VideoBitRate, "video-bit-rate", 0, "")
	fs.IntVar(&s.AudioBitRate, "audio-bit-rate", 0, "")
	fs.StringVar(&s.Role, "role", "sendrecv", "")
	spotlight := fs.String("spotlight", "", "")
	fs.IntVar(&s.SpotlightNumber, "spotlight-number", 0, "")
	fs.IntVar(&s.Port, "port", -1, "")
	simulcast := fs.String("simulcast", "false", "")
	fs.StringVar(&s.DataChannelSignaling, "data-channel-signaling", "", "")
	fs.Int("data-channel-signaling-timeout", 0, "")
	fs.StringVar(&s.IgnoreDisconnectWebsocket, "ignore-disconnect-websocket", "", "")
	fs.Int("disconnect-wait-timeout", 0, "")
	metadata := fs.String("metadata", "", "")
	if err := parseMode(fs, argv); err != nil {
		return err
	}

	var err error
	if s.Video, err = parseBool("--video", *video); err != nil {
		return err
	}
	if s.Audio, err = parseBool("--audio", *audio); err != nil {
		return err
	}
	if s.Simulcast, err = parseBool("--simulcast", *simulcast); err != nil {
		return err
	}
	if *spotlight != "" {
		b, err := parseBool("--spotlight", *spotlight)
		if err != nil {
			return err
		}
		s.Spotlight = &b
	}
	if *metadata != "" {
		if err := json.Unmarshal([]byte(*metadata), &s.Metadata); err != nil {
			return fmt.Errorf("--metadata: %w", err)
		}
	}
	if len(s.SignalingURLs) == 0 || s.ChannelID == "" {
		return errors.New("--signaling-urls and --channel-id are required")
	}
	switch s.Role {
	case "sendrecv", "sendonly", "recvonly":
	default:
		return fmt.Errorf("--role: invalid value %q", s.Role)
	}
	return checkCodecs(s.VideoCodecType, s.AudioCodecType)
}

// checkCodecs rejects codec names the client cannot negotiate.
func checkCodecs(video, audio string) error {
	if video != "" {
		if _, err := rtc.VideoCodec(video); err != nil {
			return fmt.Errorf("--video-codec-type: %w", err)
		}
	}
	if audio != "" {
		if _, err := rtc.AudioCodec(audio); err != nil {
			return fmt.Errorf("--audio-codec-type: %w", err)
		}
	}
	return nil
}

func modeFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseMode(fs *pflag.FlagSet, argv []string) error {
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

// parseBool accepts true/false and 1/0.
func parseBool(flag, s string) (bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", flag, s)
	}
	return b, nil
}

// normalize folds the multi-value forms "--libcamera-control KEY VALUE"
// and "--signaling-urls URL..." into single pflag tokens.
func normalize(argv []string) []string {
	out := make([]string, 0, len(argv))
	for i := 0; i < len(argv); i++ {
		switch argv[i] {
		case "--libcamera-control":
			if i+2 < len(argv) {
				out = append(out, "--libcamera-control="+argv[i+1]+"="+argv[i+2])
				i += 2
				continue
			}
		case "--signaling-urls":
			var urls []string
			for i+1 < len(argv) && !strings.HasPrefix(argv[i+1], "--") {
				urls = append(urls, argv[i+1])
				i++
			}
			out = append(out, "--signaling-urls="+strings.Join(urls, ","))
			continue
		}
		out = append(out, argv[i])
	}
	return out
}
