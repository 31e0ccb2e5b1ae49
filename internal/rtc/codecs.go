package rtc

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// Payload type used when a single video codec is negotiated.
const videoPayloadType = 96

// G.711 keeps its static payload types.
var audioPayloadTypes = map[string]webrtc.PayloadType{"OPUS": 111, "PCMU": 0, "PCMA": 8}

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
}

// videoCodecs maps the client's --video-codec-type values to capabilities.
var videoCodecs = map[string]webrtc.RTPCodecCapability{
	"VP8": {MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, RTCPFeedback: videoFeedback},
	"VP9": {MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0", RTCPFeedback: videoFeedback},
	"AV1": {MimeType: webrtc.MimeTypeAV1, ClockRate: 90000, SDPFmtpLine: "level-idx=5;profile=0;tier=0", RTCPFeedback: videoFeedback},
	"H264": {
		MimeType:     webrtc.MimeTypeH264,
		ClockRate:    90000,
		SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		RTCPFeedback: videoFeedback,
	},
	"H265": {MimeType: webrtc.MimeTypeH265, ClockRate: 90000, RTCPFeedback: videoFeedback},
}

var audioCodecs = map[string]webrtc.RTPCodecCapability{
	"OPUS": {MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1"},
	"PCMU": {MimeType: webrtc.MimeTypePCMU, ClockRate: 8000},
	"PCMA": {MimeType: webrtc.MimeTypePCMA, ClockRate: 8000},
}

// VideoCodec returns the capability for a codec name such as "vp9".
func VideoCodec(name string) (webrtc.RTPCodecCapability, error) {
	c, ok := videoCodecs[strings.ToUpper(name)]
	if !ok {
		return webrtc.RTPCodecCapability{}, fmt.Errorf("unsupported video codec %q", name)
	}
	return c, nil
}

// AudioCodec returns the capability for a codec name such as "OPUS".
func AudioCodec(name string) (webrtc.RTPCodecCapability, error) {
	c, ok := audioCodecs[strings.ToUpper(name)]
	if !ok {
		return webrtc.RTPCodecCapability{}, fmt.Errorf("unsupported audio codec %q", name)
	}
	return c, nil
}

// newMediaEngine registers only the requested codecs, or pion's defaults
// when none is requested.
func newMediaEngine(videoCodec, audioCodec string) (*webrtc.MediaEngine, error) {
	m := &webrtc.MediaEngine{}
	if videoCodec == "" && audioCodec == "" {
		if err := m.RegisterDefaultCodecs(); err != nil {
			return nil, fmt.Errorf("register default codecs: %w", err)
		}
		return m, nil
	}

	video := "VP8"
	if videoCodec != "" {
		video = videoCodec
	}
	vc, err := VideoCodec(video)
	if err != nil {
		return nil, err
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{RTPCodecCapability: vc, PayloadType: videoPayloadType}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register %s: %w", vc.MimeType, err)
	}

	audio := "OPUS"
	if audioCodec != "" {
		audio = strings.ToUpper(audioCodec)
	}
	ac, err := AudioCodec(audio)
	if err != nil {
		return nil, err
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{RTPCodecCapability: ac, PayloadType: audioPayloadTypes[audio]}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register %s: %w", ac.MimeType, err)
	}
	return m, nil
}
