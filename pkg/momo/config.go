package momo

// Config is a mode-specific client configuration. It is implemented only by
// P2PConfig, AyameConfig and SoraConfig, so a typed configuration can never
// carry an option that belongs to another mode.
type Config interface {
	// Mode reports the signaling mode.
	Mode() Mode
	// Common returns the mode-agnostic options.
	Common() *CommonOptions

	modeArgs() []string
}

// Engine selects an encoder or decoder implementation, e.g. "software",
// "vpl", "nvidia" or "videotoolbox". Empty means the client default.
type Engine string

const (
	EngineDefault      Engine = "default"
	EngineSoftware     Engine = "software"
	EngineVPL          Engine = "vpl"
	EngineNVIDIA       Engine = "nvidia"
	EngineVideoToolbox Engine = "videotoolbox"
)

// LibcameraControl is one --libcamera-control key/value pair.
type LibcameraControl struct {
	Key   string
	Value string
}

// CommonOptions are accepted in every mode. Zero values leave the
// corresponding flag off.
type CommonOptions struct {
	NoGoogleSTUN      bool
	NoVideoDevice     bool
	NoAudioDevice     bool
	FakeCaptureDevice bool
	ForceI420         bool
	ForceYUY2         bool
	ForceNV12         bool
	HWMJPEGDecoder    *bool

	UseLibcamera       bool
	UseLibcameraNative bool
	LibcameraControls  []LibcameraControl

	VideoDevice     string
	Resolution      string // QVGA, VGA, HD, FHD, 4K or WIDTHxHEIGHT
	Framerate       int    // 1-60
	FixedResolution bool
	Priority        string // BALANCE, FRAMERATE or RESOLUTION

	UseSDL       bool
	WindowWidth  int
	WindowHeight int
	Fullscreen   bool

	Version       bool
	Insecure      bool
	LogLevel      string // verbose, info, warning, error or none
	ScreenCapture bool

	DisableEchoCancellation bool
	DisableAutoGainControl  bool
	DisableNoiseSuppression bool
	DisableHighpassFilter   bool

	VideoCodecEngines bool
	VP8Encoder        Engine
	VP8Decoder        Engine
	VP9Encoder        Engine
	VP9Decoder        Engine
	AV1Encoder        Engine
	AV1Decoder        Engine
	H264Encoder       Engine
	H264Decoder       Engine
	H265Encoder       Engine
	H265Decoder       Engine
	OpenH264          string // path to the OpenH264 shared library

	Serial string // DEVICE,BAUDRATE

	// MetricsPort is the metrics server port. Zero asks the controller to
	// allocate one; -1 disables the metrics server.
	MetricsPort            int
	MetricsAllowExternalIP bool

	ClientCert    string
	ClientKey     string
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string

	// ExtraArgs are appended verbatim after every generated flag.
	ExtraArgs []string
}

// Common implements part of Config for embedding structs.
func (o *CommonOptions) Common() *CommonOptions { return o }

// P2PConfig runs the client in p2p mode.
type P2PConfig struct {
	CommonOptions

	DocumentRoot string
	// Port is the p2p HTTP/WebSocket port. Zero means 8080 unless the
	// controller has a PortAllocator.
	Port int
}

// Mode implements Config.
func (*P2PConfig) Mode() Mode { return ModeP2P }

// AyameConfig runs the client against an Ayame signaling server.
type AyameConfig struct {
	CommonOptions

	SignalingURL   string
	RoomID         string
	ClientID       string
	SignalingKey   string
	Direction      string // sendrecv, sendonly or recvonly
	VideoCodecType string // VP8, VP9, AV1, H264 or H265
	AudioCodecType string // OPUS, PCMU or PCMA
}

// Mode implements Config.
func (*AyameConfig) Mode() Mode { return ModeAyame }

// SoraConfig runs the client against a Sora SFU.
type SoraConfig struct {
	CommonOptions

	SignalingURLs  []string
	ChannelID      string
	Auto           bool
	Video          *bool // defaults to true
	Audio          *bool // defaults to true
	VideoCodecType string
	AudioCodecType string
	VideoBitRate   *int // 0-30000
	AudioBitRate   *int // 0-510
	Role           string
	Spotlight      *bool
	SpotlightNum   *int // 0-8
	Port           *int // -1-65535
	Simulcast      *bool

	DataChannelSignaling        string // true, false or none
	DataChannelSignalingTimeout *int
	IgnoreDisconnectWebsocket   string // true, false or none
	DisconnectWaitTimeout       *int

	Metadata map[string]any
}

// Mode implements Config.
func (*SoraConfig) Mode() Mode { return ModeSora }

// Bool returns a pointer to b, for optional config fields.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i, for optional config fields.
func Int(i int) *int { return &i }
