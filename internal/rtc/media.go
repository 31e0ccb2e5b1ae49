package rtc

import (
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

const (
	videoFrameSize  = 1000
	audioFrameSize  = 80
	audioPacketTime = 20 * time.Millisecond
)

// localMedia is one outgoing synthetic track and its feedback counters.
type localMedia struct {
	kind      webrtc.RTPCodecType
	track     *webrtc.TrackLocalStaticRTP
	sender    *webrtc.RTPSender
	clockRate uint32

	frames     atomic.Uint64
	keyFrames  atomic.Uint64
	keyRequest atomic.Bool
	pli        atomic.Uint32
	fir        atomic.Uint32
	nack       atomic.Uint32
}

// pump writes one packet per frame until the peer closes. Before the
// sender is bound WriteRTP is a no-op.
func (p *Peer) pump(m *localMedia) {
	defer p.wg.Done()

	interval := audioPacketTime
	size := audioFrameSize
	if m.kind == webrtc.RTPCodecTypeVideo {
		interval = time.Second / time.Duration(p.cfg.FrameRate)
		size = videoFrameSize
	}
	step := uint32(float64(m.clockRate) * interval.Seconds())
	seq := rtp.NewRandomSequencer()
	ts := rand.Uint32()
	mime := strings.ToLower(m.track.Codec().MimeType)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.closed:
			return
		case <-ticker.C:
		}

		key := m.kind == webrtc.RTPCodecTypeVideo && (m.frames.Load() == 0 || m.keyRequest.Swap(false))
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         true,
				SequenceNumber: seq.NextSequenceNumber(),
				Timestamp:      ts,
			},
			Payload: framePayload(mime, key, size),
		}
		if err := m.track.WriteRTP(pkt); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			p.log.Debug("write rtp", zap.String("kind", m.kind.String()), zap.Error(err))
		}
		m.frames.Add(1)
		if key {
			m.keyFrames.Add(1)
		}
		ts += step
	}
}

// readRTCP drains sender feedback. Interceptors only see RTCP that is read.
func (p *Peer) readRTCP(m *localMedia) {
	defer p.wg.Done()
	for {
		pkts, _, err := m.sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch v := pkt.(type) {
			case *rtcp.PictureLossIndication:
				m.pli.Add(1)
				m.keyRequest.Store(true)
			case *rtcp.FullIntraRequest:
				m.fir.Add(1)
				m.keyRequest.Store(true)
			case *rtcp.TransportLayerNack:
				for i := range v.Nacks {
					m.nack.Add(uint32(len(v.Nacks[i].PacketList())))
				}
			}
		}
	}
}

// framePayload returns a single-packet frame with a payload descriptor the
// receiving depacketizer accepts, followed by filler.
func framePayload(mime string, key bool, size int) []byte {
	var head []byte
	switch mime {
	case strings.ToLower(webrtc.MimeTypeVP8):
		// S bit, then a VP8 frame tag with the inter-frame bit set or clear.
		tag := byte(0x01)
		if key {
			tag = 0x00
		}
		head = []byte{0x10, tag, 0x00, 0x00, 0x9d, 0x01, 0x2a}
	case strings.ToLower(webrtc.MimeTypeVP9):
		d := byte(0x0c) // B|E
		if !key {
			d |= 0x40 // P
		}
		head = []byte{d}
	case strings.ToLower(webrtc.MimeTypeH264):
		nal := byte(0x41)
		if key {
			nal = 0x65
		}
		head = []byte{nal}
	case strings.ToLower(webrtc.MimeTypeH265):
		typ := byte(1)
		if key {
			typ = 19
		}
		head = []byte{typ << 1, 0x01}
	case strings.ToLower(webrtc.MimeTypeAV1):
		agg := byte(0x10) // W=1
		if key {
			agg |= 0x08 // N
		}
		head = []byte{agg, 0x30}
	}
	out := make([]byte, size)
	copy(out, head)
	for i := len(head); i < size; i++ {
		out[i] = byte(i)
	}
	return out
}
