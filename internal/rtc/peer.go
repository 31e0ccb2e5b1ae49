// Package rtc builds pion peer connections for the stub media client and
// the mock signaling servers, and exports their state as flat stats maps.
package rtc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Direction is the media direction of the local side.
type Direction string

const (
	SendRecv Direction = "sendrecv"
	SendOnly Direction = "sendonly"
	RecvOnly Direction = "recvonly"
)

// ParseDirection accepts "", "sendrecv", "sendonly" and "recvonly".
// The empty string means sendrecv.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", SendRecv:
		return SendRecv, nil
	case SendOnly, RecvOnly:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("invalid direction %q", s)
	}
}

func (d Direction) sends() bool { return d == SendRecv || d == SendOnly }

func (d Direction) transceiver() webrtc.RTPTransceiverDirection {
	switch d {
	case SendOnly:
		return webrtc.RTPTransceiverDirectionSendonly
	case RecvOnly:
		return webrtc.RTPTransceiverDirectionRecvonly
	default:
		return webrtc.RTPTransceiverDirectionSendrecv
	}
}

// Config describes one peer connection.
type Config struct {
	Direction  Direction
	Video      bool
	Audio      bool
	VideoCodec string // e.g. "VP8", "H264"; empty selects pion's defaults
	AudioCodec string // "OPUS" or empty
	ICEServers []string
	FrameRate  int // synthetic video frames per second, default 30

	// Reported as encoderImplementation/decoderImplementation on RTP stats.
	EncoderImplementation string
	DecoderImplementation string

	Logger *zap.Logger
}

// Peer wraps a pion PeerConnection that sends synthetic media.
type Peer struct {
	cfg Config
	pc  *webrtc.PeerConnection
	log *zap.Logger

	mu      sync.Mutex
	getter  stats.Getter
	media   []*localMedia
	added   bool
	remote  bool                      // remote description applied
	pending []webrtc.ICECandidateInit // remote candidates received before it

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// NewPeer creates the peer connection. Media tracks are added when the
// first offer is created or accepted.
func NewPeer(cfg Config) (*Peer, error) {
	if cfg.Direction == "" {
		cfg.Direction = SendRecv
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	p := &Peer{
		cfg:    cfg,
		log:    cfg.Logger,
		closed: make(chan struct{}),
	}

	m, err := newMediaEngine(cfg.VideoCodec, cfg.AudioCodec)
	if err != nil {
		return nil, err
	}
	if err := webrtc.ConfigureSimulcastExtensionHeaders(m); err != nil {
		return nil, fmt.Errorf("configure simulcast headers: %w", err)
	}
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack"}, webrtc.RTPCodecTypeVideo)
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack", Parameter: "pli"}, webrtc.RTPCodecTypeVideo)

	i := &interceptor.Registry{}
	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("configure RTCP reports: %w", err)
	}

	statsFactory, err := stats.NewInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create stats interceptor: %w", err)
	}
	statsFactory.OnNewPeerConnection(func(_ string, g stats.Getter) {
		p.mu.Lock()
		p.getter = g
		p.mu.Unlock()
	})
	i.Add(statsFactory)

	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create NACK generator: %w", err)
	}
	i.Add(generator)
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create NACK responder: %w", err)
	}
	i.Add(responder)

	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	)

	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	p.pc = pc

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.log.Info("remote track",
			zap.String("kind", track.Kind().String()),
			zap.String("codec", track.Codec().MimeType),
			zap.Uint32("ssrc", uint32(track.SSRC())))
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				return
			}
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Info("connection state", zap.String("state", state.String()))
	})
	return p, nil
}

// PeerConnection exposes the underlying connection.
func (p *Peer) PeerConnection() *webrtc.PeerConnection { return p.pc }

// OnICECandidate registers fn for locally gathered candidates. fn is not
// called for the end-of-candidates marker.
func (p *Peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

// OnConnectionStateChange registers fn in addition to the built-in logging.
func (p *Peer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Info("connection state", zap.String("state", state.String()))
		fn(state)
	})
}

// CreateOffer adds local media and returns the local offer. Candidates
// trickle through OnICECandidate.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	if err := p.addMedia(true); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return offer, nil
}

// AcceptOffer applies a remote offer and returns the local answer.
func (p *Peer) AcceptOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	p.flushPending()
	if err := p.addMedia(false); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return answer, nil
}

// AcceptAnswer applies the remote answer to a local offer.
func (p *Peer) AcceptAnswer(answer webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	p.flushPending()
	return nil
}

// AddICECandidate adds a remote candidate. Candidates that arrive before
// the remote description are held and applied once it is set.
func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	if c.Candidate == "" {
		return nil
	}
	p.mu.Lock()
	if !p.remote {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	if err := p.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (p *Peer) flushPending() {
	p.mu.Lock()
	p.remote = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.log.Warn("add held candidate", zap.Error(err))
		}
	}
}

// ConnectionState returns the aggregate connection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	return p.pc.ConnectionState()
}

// Done is closed when the peer is closed.
func (p *Peer) Done() <-chan struct{} { return p.closed }

// Close stops media and closes the connection. It is idempotent.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.closeErr = p.pc.Close()
		p.wg.Wait()
	})
	return p.closeErr
}

func (p *Peer) addMedia(offerer bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.added {
		return nil
	}
	p.added = true

	var kinds []webrtc.RTPCodecType
	if p.cfg.Video {
		kinds = append(kinds, webrtc.RTPCodecTypeVideo)
	}
	if p.cfg.Audio {
		kinds = append(kinds, webrtc.RTPCodecTypeAudio)
	}
	streamID := "momo-" + uuid.NewString()[:8]

	var errs error
	for _, kind := range kinds {
		if !p.cfg.Direction.sends() {
			if offerer {
				if _, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
					Direction: webrtc.RTPTransceiverDirectionRecvonly,
				}); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("add %s transceiver: %w", kind, err))
				}
			}
			continue
		}

		capability, err := p.trackCodec(kind)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		track, err := webrtc.NewTrackLocalStaticRTP(capability, kind.String(), streamID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("create %s track: %w", kind, err))
			continue
		}

		var sender *webrtc.RTPSender
		if offerer {
			tr, err := p.pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
				Direction: p.cfg.Direction.transceiver(),
			})
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("add %s transceiver: %w", kind, err))
				continue
			}
			sender = tr.Sender()
		} else {
			if sender, err = p.pc.AddTrack(track); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("add %s track: %w", kind, err))
				continue
			}
		}

		lm := &localMedia{kind: kind, track: track, sender: sender, clockRate: capability.ClockRate}
		p.media = append(p.media, lm)
		p.wg.Add(2)
		go p.pump(lm)
		go p.readRTCP(lm)
	}
	if errs != nil {
		return fmt.Errorf("add local media: %w", errs)
	}
	return nil
}

func (p *Peer) trackCodec(kind webrtc.RTPCodecType) (webrtc.RTPCodecCapability, error) {
	if kind == webrtc.RTPCodecTypeAudio {
		name := p.cfg.AudioCodec
		if name == "" {
			name = "OPUS"
		}
		return AudioCodec(name)
	}
	name := p.cfg.VideoCodec
	if name == "" {
		name = "VP8"
	}
	return VideoCodec(name)
}

func (p *Peer) statsGetter() stats.Getter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getter
}

func (p *Peer) localMedia() []*localMedia {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*localMedia(nil), p.media...)
}
