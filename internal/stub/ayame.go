package stub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/thesyncim/momo-e2e/internal/rtc"
	"github.com/thesyncim/momo-e2e/internal/signaling"
)

const reconnectDelay = time.Second

// ayameClient registers with an Ayame server and joins the room. It
// reconnects whenever the socket closes or the other side says bye.
type ayameClient struct {
	opts  *Options
	peers *peerSet
	log   *zap.Logger
	dir   rtc.Direction
}

func newAyameClient(o *Options, peers *peerSet, log *zap.Logger) (*ayameClient, error) {
	dir, err := rtc.ParseDirection(o.Ayame.Direction)
	if err != nil {
		return nil, err
	}
	return &ayameClient{opts: o, peers: peers, log: log.Named("ayame"), dir: dir}, nil
}

func (a *ayameClient) run(ctx context.Context) error {
	for {
		err := a.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			a.log.Warn("session ended", zap.Error(err))
		} else {
			a.log.Info("session ended, reconnecting")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

type ayameSession struct {
	*ayameClient
	conn *signaling.Conn
	ice  []string
	peer *rtc.Peer
}

func (a *ayameClient) session(ctx context.Context) error {
	conn, err := signaling.Dial(ctx, a.opts.Ayame.SignalingURL, a.opts.Insecure)
	if err != nil {
		return err
	}
	s := &ayameSession{ayameClient: a, conn: conn}
	defer func() {
		s.closePeer()
		_ = conn.Close()
	}()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	clientID := a.opts.Ayame.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	if err := conn.Send(signaling.AyameRegister{
		Type:        "register",
		ClientID:    clientID,
		RoomID:      a.opts.Ayame.RoomID,
		Key:         a.opts.Ayame.SignalingKey,
		AyameClient: ClientName(),
		LibWebRTC:   LibWebRTCName(),
		Environment: EnvironmentName(),
	}); err != nil {
		return fmt.Errorf("send register: %w", err)
	}
	a.log.Info("registered", zap.String("room", a.opts.Ayame.RoomID), zap.String("client", clientID))

	for {
		typ, raw, err := conn.Receive()
		if err != nil {
			if signaling.IsClosed(err) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		done, err := s.handle(typ, raw)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// handle processes one message. It reports true when the session is over.
func (s *ayameSession) handle(typ string, raw []byte) (bool, error) {
	switch typ {
	case "accept":
		var msg signaling.AyameAccept
		if err := json.Unmarshal(raw, &msg); err != nil {
			return false, fmt.Errorf("decode accept: %w", err)
		}
		for _, server := range msg.ICEServers {
			s.ice = append(s.ice, server.URLs...)
		}
		if msg.IsExistUser {
			peer, err := s.newPeer()
			if err != nil {
				return false, err
			}
			offer, err := peer.CreateOffer()
			if err != nil {
				return false, err
			}
			if err := s.conn.Send(signaling.SDP{Type: "offer", SDP: offer.SDP}); err != nil {
				return false, fmt.Errorf("send offer: %w", err)
			}
		}
	case "reject":
		var msg signaling.AyameReject
		_ = json.Unmarshal(raw, &msg)
		return true, fmt.Errorf("register rejected: %s", msg.Reason)
	case "offer":
		var msg signaling.SDP
		if err := json.Unmarshal(raw, &msg); err != nil {
			return false, fmt.Errorf("decode offer: %w", err)
		}
		s.closePeer()
		peer, err := s.newPeer()
		if err != nil {
			return false, err
		}
		answer, err := peer.AcceptOffer(msg.Description())
		if err != nil {
			return false, err
		}
		if err := s.conn.Send(signaling.SDP{Type: "answer", SDP: answer.SDP}); err != nil {
			return false, fmt.Errorf("send answer: %w", err)
		}
	case "answer":
		var msg signaling.SDP
		if err := json.Unmarshal(raw, &msg); err != nil {
			return false, fmt.Errorf("decode answer: %w", err)
		}
		if s.peer == nil {
			return false, errors.New("answer without a local offer")
		}
		if err := s.peer.AcceptAnswer(msg.Description()); err != nil {
			return false, err
		}
	case "candidate":
		var msg signaling.Candidate
		if err := json.Unmarshal(raw, &msg); err != nil {
			return false, fmt.Errorf("decode candidate: %w", err)
		}
		if s.peer != nil {
			if err := s.peer.AddICECandidate(msg.ICE.ToInit()); err != nil {
				s.log.Warn("add candidate", zap.Error(err))
			}
		}
	case "ping":
		if err := s.conn.Send(signaling.Simple{Type: "pong"}); err != nil {
			return false, fmt.Errorf("send pong: %w", err)
		}
	case "bye":
		s.log.Info("peer left the room")
		return true, nil
	default:
		s.log.Debug("ignore message", zap.String("type", typ))
	}
	return false, nil
}

func (s *ayameSession) newPeer() (*rtc.Peer, error) {
	a := s.opts.Ayame
	cfg := s.opts.peerConfig(s.dir, a.VideoCodecType, a.AudioCodecType, true, true, s.log)
	cfg.ICEServers = append(cfg.ICEServers, s.ice...)
	peer, err := rtc.NewPeer(cfg)
	if err != nil {
		return nil, err
	}
	peer.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if err := s.conn.Send(signaling.Candidate{Type: "candidate", ICE: signaling.ICEFromInit(c)}); err != nil {
			s.log.Debug("send candidate", zap.Error(err))
		}
	})
	s.peers.add(peer)
	s.peer = peer
	return peer, nil
}

func (s *ayameSession) closePeer() {
	if s.peer != nil {
		s.peers.remove(s.peer)
		s.peer = nil
	}
}
