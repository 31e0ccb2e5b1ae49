package stub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/thesyncim/momo-e2e/internal/rtc"
	"github.com/thesyncim/momo-e2e/internal/signaling"
)

// p2pServer serves the P2P page and answers one browser at a time over /ws.
type p2pServer struct {
	opts  *Options
	peers *peerSet
	log   *zap.Logger

	mu     sync.Mutex
	active *rtc.Peer
}

func newP2PServer(o *Options, peers *peerSet, log *zap.Logger) *p2pServer {
	return &p2pServer{opts: o, peers: peers, log: log.Named("p2p")}
}

func (s *p2pServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	if s.opts.P2P.DocumentRoot != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.opts.P2P.DocumentRoot)))
	} else {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(P2PPage))
		})
	}
	return mux
}

func (s *p2pServer) run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.P2P.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: s.handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("p2p server listening", zap.String("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.replace(nil)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// replace makes p the active peer and closes the previous one.
func (s *p2pServer) replace(p *rtc.Peer) {
	s.mu.Lock()
	old := s.active
	s.active = p
	s.mu.Unlock()
	if old != nil && old != p {
		s.peers.remove(old)
	}
}

func (s *p2pServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := signaling.Accept(w, r)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	var peer *rtc.Peer
	defer func() {
		if peer != nil {
			s.mu.Lock()
			if s.active == peer {
				s.active = nil
			}
			s.mu.Unlock()
			s.peers.remove(peer)
		}
	}()

	for {
		typ, raw, err := conn.Receive()
		if err != nil {
			if !signaling.IsClosed(err) {
				s.log.Debug("websocket read", zap.Error(err))
			}
			return
		}
		switch typ {
		case "offer":
			var msg signaling.SDP
			if err := json.Unmarshal(raw, &msg); err != nil {
				s.log.Warn("decode offer", zap.Error(err))
				continue
			}
			if peer != nil {
				s.peers.remove(peer)
			}
			peer, err = s.answer(conn, msg.Description())
			if err != nil {
				s.log.Error("answer offer", zap.Error(err))
				peer = nil
			}
		case "candidate":
			var msg signaling.Candidate
			if err := json.Unmarshal(raw, &msg); err != nil {
				s.log.Warn("decode candidate", zap.Error(err))
				continue
			}
			if peer == nil {
				continue
			}
			if err := peer.AddICECandidate(msg.ICE.ToInit()); err != nil {
				s.log.Warn("add candidate", zap.Error(err))
			}
		case "close":
			if peer != nil {
				s.peers.remove(peer)
				peer = nil
			}
		default:
			s.log.Debug("ignore message", zap.String("type", typ))
		}
	}
}

func (s *p2pServer) answer(conn *signaling.Conn, offer webrtc.SessionDescription) (*rtc.Peer, error) {
	peer, err := rtc.NewPeer(s.opts.peerConfig(rtc.SendRecv, "", "", true, true, s.log))
	if err != nil {
		return nil, err
	}
	peer.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if err := conn.Send(signaling.Candidate{Type: "candidate", ICE: signaling.ICEFromInit(c)}); err != nil {
			s.log.Debug("send candidate", zap.Error(err))
		}
	})
	s.peers.add(peer)
	s.replace(peer)

	answer, err := peer.AcceptOffer(offer)
	if err != nil {
		s.peers.remove(peer)
		return nil, err
	}
	if err := conn.Send(signaling.SDP{Type: "answer", SDP: answer.SDP}); err != nil {
		s.peers.remove(peer)
		return nil, fmt.Errorf("send answer: %w", err)
	}
	return peer, nil
}
