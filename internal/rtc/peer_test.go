package rtc

import (
	"testing"
	"time"

	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// connectPair wires two peers together in-process, offerer first.
func connectPair(t *testing.T, offerCfg, answerCfg Config) (*Peer, *Peer) {
	t.Helper()
	offerCfg.Logger = zaptest.NewLogger(t).Named("offerer")
	answerCfg.Logger = zaptest.NewLogger(t).Named("answerer")

	offerer, err := NewPeer(offerCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = offerer.Close() })
	answerer, err := NewPeer(answerCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = answerer.Close() })

	offerer.OnICECandidate(func(c webrtc.ICECandidateInit) {
		_ = answerer.AddICECandidate(c)
	})
	answerer.OnICECandidate(func(c webrtc.ICECandidateInit) {
		_ = offerer.AddICECandidate(c)
	})

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	answer, err := answerer.AcceptOffer(offer)
	require.NoError(t, err)
	require.NoError(t, offerer.AcceptAnswer(answer))
	return offerer, answerer
}

func findStat(stats []map[string]any, typ string) map[string]any {
	for _, s := range stats {
		if s["type"] == typ {
			return s
		}
	}
	return nil
}

func TestPeer_ConnectsAndReportsStats(t *testing.T) {
	offerer, answerer := connectPair(t,
		Config{Direction: SendOnly, Video: true, Audio: true, VideoCodec: "H264", EncoderImplementation: "stub-encoder"},
		Config{Direction: RecvOnly, Video: true, Audio: true, VideoCodec: "H264", DecoderImplementation: "stub-decoder"},
	)

	require.Eventually(t, func() bool {
		tr := findStat(offerer.Stats(), "transport")
		return tr != nil && tr["dtlsState"] == "connected" && tr["iceState"] == "connected"
	}, 15*time.Second, 100*time.Millisecond, "offerer transport never connected")

	require.Eventually(t, func() bool {
		for _, s := range answerer.Stats() {
			if s["type"] == "inbound-rtp" && s["kind"] == "video" {
				n, _ := s["packetsReceived"].(uint64)
				return n > 0
			}
		}
		return false
	}, 10*time.Second, 100*time.Millisecond, "no inbound video packets")

	var out map[string]any
	for _, s := range offerer.Stats() {
		if s["type"] == "outbound-rtp" && s["kind"] == "video" {
			out = s
		}
	}
	require.NotNil(t, out)
	assert.Equal(t, "stub-encoder", out["encoderImplementation"])
	assert.Equal(t, webrtc.MimeTypeH264, out["mimeType"])

	codec := findStat(offerer.Stats(), "codec")
	require.NotNil(t, codec)
	for _, s := range offerer.Stats() {
		if s["type"] == "codec" {
			assert.Contains(t, []any{webrtc.MimeTypeH264, webrtc.MimeTypeOpus}, s["mimeType"])
		}
	}

	in := findStat(answerer.Stats(), "inbound-rtp")
	require.NotNil(t, in)
	assert.Equal(t, "stub-decoder", in["decoderImplementation"])
}

func TestPeer_TransportStateBeforeConnect(t *testing.T) {
	p, err := NewPeer(Config{Video: true})
	require.NoError(t, err)
	defer p.Close()

	tr := findStat(p.Stats(), "transport")
	require.NotNil(t, tr)
	assert.NotEqual(t, "connected", tr["dtlsState"])
	assert.NotEqual(t, "connected", tr["iceState"])
}

func TestPeer_CloseIdempotent(t *testing.T) {
	p, err := NewPeer(Config{Video: true, Audio: true})
	require.NoError(t, err)
	_, err = p.CreateOffer()
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"": SendRecv, "sendrecv": SendRecv, "sendonly": SendOnly, "recvonly": RecvOnly} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseDirection("inactive")
	assert.Error(t, err)
}

func TestCodecLookup(t *testing.T) {
	c, err := VideoCodec("vp9")
	require.NoError(t, err)
	assert.Equal(t, webrtc.MimeTypeVP9, c.MimeType)

	_, err = VideoCodec("MPEG2")
	assert.Error(t, err)

	a, err := AudioCodec("opus")
	require.NoError(t, err)
	assert.Equal(t, uint32(48000), a.ClockRate)
}

func TestFramePayload_VP8KeyFrameDetected(t *testing.T) {
	key := framePayload("video/vp8", true, videoFrameSize)
	delta := framePayload("video/vp8", false, videoFrameSize)
	require.Len(t, key, videoFrameSize)

	var depacketizer codecs.VP8Packet
	_, err := depacketizer.Unmarshal(key)
	require.NoError(t, err)
	assert.True(t, depacketizer.IsPartitionHead(key))
	assert.Equal(t, byte(0), key[1]&0x01, "keyframe tag must clear the P bit")
	assert.Equal(t, byte(1), delta[1]&0x01)
}

func TestFramePayload_H264NALType(t *testing.T) {
	assert.Equal(t, byte(5), framePayload("video/h264", true, 10)[0]&0x1f)
	assert.Equal(t, byte(1), framePayload("video/h264", false, 10)[0]&0x1f)
}
