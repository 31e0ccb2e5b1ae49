package stub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/thesyncim/momo-e2e/internal/rtc"
	"github.com/thesyncim/momo-e2e/internal/signaling"
)

// soraClient connects to the first reachable signaling URL, sends connect
// and answers the SFU's offer. Redirects are followed; a closed session is
// retried after reconnectDelay.
type soraClient struct {
	opts  *Options
	peers *peerSet
	log   *zap.Logger
	dir   rtc.Direction
}

func newSoraClient(o *Options, peers *peerSet, log *zap.Logger) (*soraClient, error) {
	dir, err := rtc.ParseDirection(o.Sora.Role)
	if err != nil {
		return nil, err
	}
	return &soraClient{opts: o, peers: peers, log: log.Named("sora"), dir: dir}, nil
}

func (c *soraClient) run(ctx context.Context) error {
	urls := c.opts.Sora.SignalingURLs
	for {
		redirect, err := c.session(ctx, urls)
		if ctx.Err() != nil {
			return nil
		}
		if redirect != "" {
			c.log.Info("redirected", zap.String("location", redirect))
			urls = []string{redirect}
			continue
		}
		urls = c.opts.Sora.SignalingURLs
		if err != nil {
			c.log.Warn("session ended", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// dial tries urls in order and returns the first connection.
func (c *soraClient) dial(ctx context.Context, urls []string) (*signaling.Conn, string, error) {
	var errs error
	for _, u := range urls {
		conn, err := signaling.Dial(ctx, u, c.opts.Insecure)
		if err == nil {
			return conn, u, nil
		}
		errs = multierr.Append(errs, err)
	}
	if errs == nil {
		errs = errors.New("no signaling URLs")
	}
	return nil, "", errs
}

func (c *soraClient) connectMessage() signaling.SoraConnect {
	s := c.opts.Sora
	msg := signaling.SoraConnect{
		Type:        "connect",
		Role:        s.Role,
		ChannelID:   s.ChannelID,
		SoraClient:  ClientName(),
		LibWebRTC:   LibWebRTCName(),
		Environment: EnvironmentName(),
		Metadata:    s.Metadata,
		Video:       false,
		Audio:       false,
	}
	if s.Video {
		msg.Video = signaling.SoraMedia{CodecType: s.VideoCodecType, BitRate: s.VideoBitRate}
	}
	if s.Audio {
		msg.Audio = signaling.SoraMedia{CodecType: s.AudioCodecType, BitRate: s.AudioBitRate}
	}
	if s.Simulcast {
		msg.Simulcast = &s.Simulcast
	}
	if s.Spotlight != nil {
		msg.Spotlight = s.Spotlight
		if *s.Spotlight {
			multistream := true
			msg.Multistream = &multistream
		}
		if s.SpotlightNumber > 0 {
			n := s.SpotlightNumber
			msg.SpotlightNumber = &n
		}
	}
	msg.DataChannelSignaling = optionalBool(s.DataChannelSignaling)
	msg.IgnoreDisconnectWebsocket = optionalBool(s.IgnoreDisconnectWebsocket)
	return msg
}

// optionalBool maps "true"/"false" to a pointer; "none" and "" leave it unset.
func optionalBool(s string) *bool {
	switch strings.ToLower(s) {
	case "true", "1":
		b := true
		return &b
	case "false", "0":
		b := false
		return &b
	default:
		return nil
	}
}

type soraSession struct {
	*soraClient
	conn *signaling.Conn
	peer *rtc.Peer
}

// session runs one signaling connection. A non-empty result is a redirect
// location.
func (c *soraClient) session(ctx context.Context, urls []string) (string, error) {
	conn, url, err := c.dial(ctx, urls)
	if err != nil {
		return "", err
	}
	s := &soraSession{soraClient: c, conn: conn}
	defer func() {
		if s.peer != nil {
			c.peers.remove(s.peer)
		}
		_ = conn.Close()
	}()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.Send(c.connectMessage()); err != nil {
		return "", fmt.Errorf("send connect: %w", err)
	}
	c.log.Info("connect sent", zap.String("url", url), zap.String("channel", c.opts.Sora.ChannelID))

	for {
		typ, raw, err := conn.Receive()
		if err != nil {
			if signaling.IsClosed(err) || ctx.Err() != nil {
				return "", nil
			}
			return "", err
		}
		redirect, done, err := s.handle(typ, raw)
		if err != nil || done || redirect != "" {
			return redirect, err
		}
	}
}

func (s *soraSession) handle(typ string, raw []byte) (redirect string, done bool, err error) {
	switch typ {
	case "offer":
		var msg signaling.SoraOffer
		if err := json.Unmarshal(raw, &msg); err != nil {
			return "", false, fmt.Errorf("decode offer: %w", err)
		}
		s.log.Info("offer received",
			zap.String("client_id", msg.ClientID), zap.String("connection_id", msg.ConnectionID))
		if s.peer != nil {
			s.peers.remove(s.peer)
		}
		if s.peer, err = s.newPeer(); err != nil {
			return "", false, err
		}
		answer, err := s.peer.AcceptOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP})
		if err != nil {
			return "", false, err
		}
		if err := s.conn.Send(signaling.SDP{Type: "answer", SDP: answer.SDP}); err != nil {
			return "", false, fmt.Errorf("send answer: %w", err)
		}
	case "re-offer":
		var msg signaling.SDP
		if err := json.Unmarshal(raw, &msg); err != nil {
			return "", false, fmt.Errorf("decode re-offer: %w", err)
		}
		if s.peer == nil {
			return "", false, errors.New("re-offer before offer")
		}
		answer, err := s.peer.AcceptOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP})
		if err != nil {
			return "", false, err
		}
		if err := s.conn.Send(signaling.SDP{Type: "re-answer", SDP: answer.SDP}); err != nil {
			return "", false, fmt.Errorf("send re-answer: %w", err)
		}
	case "candidate":
		var msg signaling.SoraCandidate
		if err := json.Unmarshal(raw, &msg); err != nil {
			return "", false, fmt.Errorf("decode candidate: %w", err)
		}
		if s.peer != nil {
			if err := s.peer.AddICECandidate(webrtc.ICECandidateInit{Candidate: msg.Candidate}); err != nil {
				s.log.Warn("add candidate", zap.Error(err))
			}
		}
	case "ping":
		var msg signaling.SoraPing
		if err := json.Unmarshal(raw, &msg); err != nil {
			return "", false, fmt.Errorf("decode ping: %w", err)
		}
		pong := signaling.SoraPong{Type: "pong"}
		if msg.Stats && s.peer != nil {
			pong.Stats = s.peer.Stats()
		}
		if err := s.conn.Send(pong); err != nil {
			return "", false, fmt.Errorf("send pong: %w", err)
		}
	case "notify":
		var msg signaling.SoraNotify
		_ = json.Unmarshal(raw, &msg)
		s.log.Debug("notify", zap.String("event_type", msg.EventType))
	case "redirect":
		var msg signaling.SoraRedirect
		if err := json.Unmarshal(raw, &msg); err != nil {
			return "", false, fmt.Errorf("decode redirect: %w", err)
		}
		return msg.Location, false, nil
	case "close":
		return "", true, nil
	default:
		s.log.Debug("ignore message", zap.String("type", typ))
	}
	return "", false, nil
}

func (s *soraSession) newPeer() (*rtc.Peer, error) {
	o := s.opts.Sora
	cfg := s.opts.peerConfig(s.dir, o.VideoCodecType, o.AudioCodecType, o.Video, o.Audio, s.log)
	peer, err := rtc.NewPeer(cfg)
	if err != nil {
		return nil, err
	}
	peer.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if err := s.conn.Send(signaling.SoraCandidate{Type: "candidate", Candidate: c.Candidate}); err != nil {
			s.log.Debug("send candidate", zap.Error(err))
		}
	})
	s.peers.add(peer)
	return peer, nil
}
