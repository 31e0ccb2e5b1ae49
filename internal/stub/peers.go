package stub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/thesyncim/momo-e2e/internal/rtc"
)

const googleSTUN = "stun:stun.l.google.com:19302"

// peerSet tracks the live peer connections whose stats are reported.
type peerSet struct {
	mu    sync.Mutex
	peers map[*rtc.Peer]struct{}
}

func newPeerSet() *peerSet {
	return &peerSet{peers: map[*rtc.Peer]struct{}{}}
}

func (s *peerSet) add(p *rtc.Peer) {
	s.mu.Lock()
	s.peers[p] = struct{}{}
	s.mu.Unlock()
}

// remove closes p and drops it from the set.
func (s *peerSet) remove(p *rtc.Peer) {
	if p == nil {
		return
	}
	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	_ = p.Close()
}

func (s *peerSet) closeAll() {
	s.mu.Lock()
	peers := s.peers
	s.peers = map[*rtc.Peer]struct{}{}
	s.mu.Unlock()
	for p := range peers {
		_ = p.Close()
	}
}

// Stats concatenates the stats of every live peer.
func (s *peerSet) Stats() []map[string]any {
	s.mu.Lock()
	peers := make([]*rtc.Peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	out := []map[string]any{}
	for _, p := range peers {
		out = append(out, p.Stats()...)
	}
	return out
}

// peerConfig derives a peer configuration from the command line.
func (o *Options) peerConfig(direction rtc.Direction, videoCodec, audioCodec string, video, audio bool, log *zap.Logger) rtc.Config {
	var ice []string
	if !o.NoGoogleSTUN {
		ice = []string{googleSTUN}
	}
	codec := videoCodec
	if codec == "" {
		codec = "VP8"
	}
	return rtc.Config{
		Direction:             direction,
		Video:                 video && (direction == rtc.RecvOnly || !o.NoVideoDevice),
		Audio:                 audio && (direction == rtc.RecvOnly || !o.NoAudioDevice),
		VideoCodec:            videoCodec,
		AudioCodec:            audioCodec,
		ICEServers:            ice,
		FrameRate:             o.Framerate,
		EncoderImplementation: o.encoderImplementation(codec),
		DecoderImplementation: o.decoderImplementation(codec),
		Logger:                log,
	}
}
