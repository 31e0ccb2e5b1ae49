package stub

import (
	"fmt"
	"runtime"
	"strings"
)

const (
	clientVersion  = "2025.1.0"
	libwebrtcBuild = "m136.7103.0.0"
)

// ClientName is reported as ayameClient and sora_client.
func ClientName() string { return "WebRTC Native Client Momo " + clientVersion + " (stub)" }

// LibWebRTCName is reported as libwebrtc.
func LibWebRTCName() string { return "Shiguredo-build " + libwebrtcBuild + " (pion)" }

// EnvironmentName is reported as environment.
func EnvironmentName() string {
	return fmt.Sprintf("[%s] %s (%s)", runtime.GOARCH, runtime.GOOS, runtime.Version())
}

// implementation maps a codec and engine to the name the client reports
// as encoderImplementation or decoderImplementation.
func implementation(codec, engine, openh264 string, encoder bool) string {
	codec = strings.ToUpper(codec)
	switch engine {
	case "vpl":
		return "libvpl"
	case "nvidia":
		return "NvCodec"
	case "videotoolbox":
		return "VideoToolbox"
	}
	switch codec {
	case "", "VP8", "VP9":
		return "libvpx"
	case "AV1":
		if encoder {
			return "libaom"
		}
		return "dav1d"
	case "H264":
		if openh264 != "" || engine == "software" {
			return "OpenH264"
		}
		return "FFmpeg"
	default:
		return "unknown"
	}
}

func (o *Options) encoderImplementation(codec string) string {
	return implementation(codec, o.Encoders[strings.ToUpper(codec)], o.OpenH264, true)
}

func (o *Options) decoderImplementation(codec string) string {
	return implementation(codec, o.Decoders[strings.ToUpper(codec)], o.OpenH264, false)
}
