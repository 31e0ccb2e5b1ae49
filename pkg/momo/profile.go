package momo

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is an untyped client configuration: a mode plus a flat set of
// snake_case options. It is what YAML files and CLI callers produce.
// Config validates it against the mode and converts it to a typed Config.
type Profile struct {
	Mode           Mode `yaml:"mode"`
	ProfileOptions `yaml:",inline"`
}

// ProfileOptions is the flat option set of a Profile. Every field is optional; a
// non-nil field counts as specified. The mode tag names the only mode that
// accepts the option, untagged options are common to all modes.
type ProfileOptions struct {
	NoGoogleSTUN            *bool       `yaml:"no_google_stun"`
	NoVideoDevice           *bool       `yaml:"no_video_device"`
	NoAudioDevice           *bool       `yaml:"no_audio_device"`
	FakeCaptureDevice       *bool       `yaml:"fake_capture_device"`
	ForceI420               *bool       `yaml:"force_i420"`
	ForceYUY2               *bool       `yaml:"force_yuy2"`
	ForceNV12               *bool       `yaml:"force_nv12"`
	HWMJPEGDecoder          *bool       `yaml:"hw_mjpeg_decoder"`
	UseLibcamera            *bool       `yaml:"use_libcamera"`
	UseLibcameraNative      *bool       `yaml:"use_libcamera_native"`
	LibcameraControl        [][2]string `yaml:"libcamera_control"`
	VideoDevice             *string     `yaml:"video_device"`
	Resolution              *string     `yaml:"resolution"`
	Framerate               *int        `yaml:"framerate"`
	FixedResolution         *bool       `yaml:"fixed_resolution"`
	Priority                *string     `yaml:"priority"`
	UseSDL                  *bool       `yaml:"use_sdl"`
	WindowWidth             *int        `yaml:"window_width"`
	WindowHeight            *int        `yaml:"window_height"`
	Fullscreen              *bool       `yaml:"fullscreen"`
	Version                 *bool       `yaml:"version"`
	Insecure                *bool       `yaml:"insecure"`
	LogLevel                *string     `yaml:"log_level"`
	ScreenCapture           *bool       `yaml:"screen_capture"`
	DisableEchoCancellation *bool       `yaml:"disable_echo_cancellation"`
	DisableAutoGainControl  *bool       `yaml:"disable_auto_gain_control"`
	DisableNoiseSuppression *bool       `yaml:"disable_noise_suppression"`
	DisableHighpassFilter   *bool       `yaml:"disable_highpass_filter"`
	VideoCodecEngines       *bool       `yaml:"video_codec_engines"`
	VP8Encoder              *Engine     `yaml:"vp8_encoder"`
	VP8Decoder              *Engine     `yaml:"vp8_decoder"`
	VP9Encoder              *Engine     `yaml:"vp9_encoder"`
	VP9Decoder              *Engine     `yaml:"vp9_decoder"`
	AV1Encoder              *Engine     `yaml:"av1_encoder"`
	AV1Decoder              *Engine     `yaml:"av1_decoder"`
	H264Encoder             *Engine     `yaml:"h264_encoder"`
	H264Decoder             *Engine     `yaml:"h264_decoder"`
	H265Encoder             *Engine     `yaml:"h265_encoder"`
	H265Decoder             *Engine     `yaml:"h265_decoder"`
	OpenH264                *string     `yaml:"openh264"`
	Serial                  *string     `yaml:"serial"`
	MetricsPort             *int        `yaml:"metrics_port"`
	MetricsAllowExternalIP  *bool       `yaml:"metrics_allow_external_ip"`
	ClientCert              *string     `yaml:"client_cert"`
	ClientKey               *string     `yaml:"client_key"`
	ProxyURL                *string     `yaml:"proxy_url"`
	ProxyUsername           *string     `yaml:"proxy_username"`
	ProxyPassword           *string     `yaml:"proxy_password"`
	ExtraArgs               []string    `yaml:"extra_args"`

	// Port is accepted in every mode and only passed on in p2p mode.
	Port *int `yaml:"port"`

	DocumentRoot *string `yaml:"document_root" mode:"p2p"`

	AyameSignalingURL   *string `yaml:"ayame_signaling_url" mode:"ayame"`
	RoomID              *string `yaml:"room_id" mode:"ayame"`
	ClientID            *string `yaml:"client_id" mode:"ayame"`
	SignalingKey        *string `yaml:"signaling_key" mode:"ayame"`
	Direction           *string `yaml:"direction" mode:"ayame"`
	AyameVideoCodecType *string `yaml:"ayame_video_codec_type" mode:"ayame"`
	AyameAudioCodecType *string `yaml:"ayame_audio_codec_type" mode:"ayame"`

	SignalingURLs               urlList        `yaml:"signaling_urls" mode:"sora"`
	ChannelID                   *string        `yaml:"channel_id" mode:"sora"`
	Auto                        *bool          `yaml:"auto" mode:"sora"`
	Video                       *bool          `yaml:"video" mode:"sora"`
	Audio                       *bool          `yaml:"audio" mode:"sora"`
	VideoCodecType              *string        `yaml:"video_codec_type" mode:"sora"`
	AudioCodecType              *string        `yaml:"audio_codec_type" mode:"sora"`
	VideoBitRate                *int           `yaml:"video_bit_rate" mode:"sora"`
	AudioBitRate                *int           `yaml:"audio_bit_rate" mode:"sora"`
	Role                        *string        `yaml:"role" mode:"sora"`
	Spotlight                   *bool          `yaml:"spotlight" mode:"sora"`
	SpotlightNumber             *int           `yaml:"spotlight_number" mode:"sora"`
	SoraPort                    *int           `yaml:"sora_port" mode:"sora"`
	Simulcast                   *bool          `yaml:"simulcast" mode:"sora"`
	DataChannelSignaling        *tristate      `yaml:"data_channel_signaling" mode:"sora"`
	DataChannelSignalingTimeout *int           `yaml:"data_channel_signaling_timeout" mode:"sora"`
	IgnoreDisconnectWebsocket   *tristate      `yaml:"ignore_disconnect_websocket" mode:"sora"`
	DisconnectWaitTimeout       *int           `yaml:"disconnect_wait_timeout" mode:"sora"`
	Metadata                    map[string]any `yaml:"metadata" mode:"sora"`
}

// urlList accepts either a YAML sequence or one space/comma separated string.
type urlList []string

func (u *urlList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*u = SplitSignalingURLs(node.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*u = list
		return nil
	default:
		return fmt.Errorf("line %d: signaling_urls must be a string or a list", node.Line)
	}
}

// tristate keeps "true", "false" and "none" as strings whether or not the
// YAML author quoted them.
type tristate string

func (t *tristate) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected true, false or none", node.Line)
	}
	switch v := strings.ToLower(node.Value); v {
	case "true", "false", "none":
		*t = tristate(v)
		return nil
	default:
		return fmt.Errorf("line %d: %q is not one of true, false, none", node.Line, node.Value)
	}
}

// LoadProfile reads a YAML profile from path. Unknown keys are rejected.
func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := DecodeProfile(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// DecodeProfile decodes one YAML profile document.
func DecodeProfile(r io.Reader) (*Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if _, err := ParseMode(string(p.Mode)); err != nil {
		return nil, err
	}
	return &p, nil
}

// ProfileFromMap builds a profile from keyword-style options, e.g.
// {"resolution": "QVGA", "framerate": 15}.
func ProfileFromMap(mode Mode, opts map[string]any) (*Profile, error) {
	doc := make(map[string]any, len(opts)+1)
	for k, v := range opts {
		doc[k] = v
	}
	doc["mode"] = string(mode)
	b, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return DecodeProfile(bytes.NewReader(b))
}

// Specified returns the names of the options that are set, keyed to the
// mode owning each one ("" for common options).
func (o *ProfileOptions) Specified() map[string]Mode {
	out := make(map[string]Mode)
	v := reflect.ValueOf(o).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if v.Field(i).IsNil() {
			continue
		}
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		out[name] = Mode(f.Tag.Get("mode"))
	}
	return out
}

// Validate reports every option that belongs to a mode other than p.Mode.
func (p *Profile) Validate() error {
	var invalid []string
	owners := make(map[Mode]bool)
	for name, owner := range p.ProfileOptions.Specified() {
		if owner == "" || owner == p.Mode {
			continue
		}
		invalid = append(invalid, name)
		owners[owner] = true
	}
	if len(invalid) == 0 {
		return nil
	}
	sort.Strings(invalid)
	e := &OptionsError{Mode: p.Mode, Options: invalid}
	for _, m := range Modes {
		if owners[m] {
			e.Owners = append(e.Owners, m)
		}
	}
	return e
}

// Config validates the profile and converts it to a typed Config.
func (p *Profile) Config() (Config, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	o := &p.ProfileOptions
	common := o.common()
	switch p.Mode {
	case ModeP2P:
		return &P2PConfig{
			CommonOptions: common,
			DocumentRoot:  deref(o.DocumentRoot),
			Port:          deref(o.Port),
		}, nil
	case ModeAyame:
		return &AyameConfig{
			CommonOptions:  common,
			SignalingURL:   deref(o.AyameSignalingURL),
			RoomID:         deref(o.RoomID),
			ClientID:       deref(o.ClientID),
			SignalingKey:   deref(o.SignalingKey),
			Direction:      deref(o.Direction),
			VideoCodecType: deref(o.AyameVideoCodecType),
			AudioCodecType: deref(o.AyameAudioCodecType),
		}, nil
	case ModeSora:
		return &SoraConfig{
			CommonOptions:               common,
			SignalingURLs:               o.SignalingURLs,
			ChannelID:                   deref(o.ChannelID),
			Auto:                        deref(o.Auto),
			Video:                       o.Video,
			Audio:                       o.Audio,
			VideoCodecType:              deref(o.VideoCodecType),
			AudioCodecType:              deref(o.AudioCodecType),
			VideoBitRate:                o.VideoBitRate,
			AudioBitRate:                o.AudioBitRate,
			Role:                        deref(o.Role),
			Spotlight:                   o.Spotlight,
			SpotlightNum:                o.SpotlightNumber,
			Port:                        o.SoraPort,
			Simulcast:                   o.Simulcast,
			DataChannelSignaling:        string(deref(o.DataChannelSignaling)),
			DataChannelSignalingTimeout: o.DataChannelSignalingTimeout,
			IgnoreDisconnectWebsocket:   string(deref(o.IgnoreDisconnectWebsocket)),
			DisconnectWaitTimeout:       o.DisconnectWaitTimeout,
			Metadata:                    o.Metadata,
		}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", p.Mode)
	}
}

func (o *ProfileOptions) common() CommonOptions {
	c := CommonOptions{
		NoGoogleSTUN:            deref(o.NoGoogleSTUN),
		NoVideoDevice:           deref(o.NoVideoDevice),
		NoAudioDevice:           deref(o.NoAudioDevice),
		FakeCaptureDevice:       deref(o.FakeCaptureDevice),
		ForceI420:               deref(o.ForceI420),
		ForceYUY2:               deref(o.ForceYUY2),
		ForceNV12:               deref(o.ForceNV12),
		HWMJPEGDecoder:          o.HWMJPEGDecoder,
		UseLibcamera:            deref(o.UseLibcamera),
		UseLibcameraNative:      deref(o.UseLibcameraNative),
		VideoDevice:             deref(o.VideoDevice),
		Resolution:              deref(o.Resolution),
		Framerate:               deref(o.Framerate),
		FixedResolution:         deref(o.FixedResolution),
		Priority:                deref(o.Priority),
		UseSDL:                  deref(o.UseSDL),
		WindowWidth:             deref(o.WindowWidth),
		WindowHeight:            deref(o.WindowHeight),
		Fullscreen:              deref(o.Fullscreen),
		Version:                 deref(o.Version),
		Insecure:                deref(o.Insecure),
		LogLevel:                deref(o.LogLevel),
		ScreenCapture:           deref(o.ScreenCapture),
		DisableEchoCancellation: deref(o.DisableEchoCancellation),
		DisableAutoGainControl:  deref(o.DisableAutoGainControl),
		DisableNoiseSuppression: deref(o.DisableNoiseSuppression),
		DisableHighpassFilter:   deref(o.DisableHighpassFilter),
		VideoCodecEngines:       deref(o.VideoCodecEngines),
		VP8Encoder:              deref(o.VP8Encoder),
		VP8Decoder:              deref(o.VP8Decoder),
		VP9Encoder:              deref(o.VP9Encoder),
		VP9Decoder:              deref(o.VP9Decoder),
		AV1Encoder:              deref(o.AV1Encoder),
		AV1Decoder:              deref(o.AV1Decoder),
		H264Encoder:             deref(o.H264Encoder),
		H264Decoder:             deref(o.H264Decoder),
		H265Encoder:             deref(o.H265Encoder),
		H265Decoder:             deref(o.H265Decoder),
		OpenH264:                deref(o.OpenH264),
		Serial:                  deref(o.Serial),
		MetricsPort:             deref(o.MetricsPort),
		MetricsAllowExternalIP:  deref(o.MetricsAllowExternalIP),
		ClientCert:              deref(o.ClientCert),
		ClientKey:               deref(o.ClientKey),
		ProxyURL:                deref(o.ProxyURL),
		ProxyUsername:           deref(o.ProxyUsername),
		ProxyPassword:           deref(o.ProxyPassword),
		ExtraArgs:               o.ExtraArgs,
	}
	for _, kv := range o.LibcameraControl {
		c.LibcameraControls = append(c.LibcameraControls, LibcameraControl{Key: kv[0], Value: kv[1]})
	}
	return c
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
