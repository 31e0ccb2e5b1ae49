package momotest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/thesyncim/momo-e2e/internal/rtc"
	"github.com/thesyncim/momo-e2e/internal/signaling"
)

// SoraServer is an in-process stand-in for a Sora SFU: it answers connect
// with an offer from a pion peer and relays candidates. Each connection
// gets its own peer; media is not forwarded between clients.
type SoraServer struct {
	srv *httptest.Server
	log *zap.Logger
	cfg SoraServerConfig

	mu       sync.Mutex
	connects []signaling.SoraConnect
	pongs    []signaling.SoraPong
	peers    map[*rtc.Peer]struct{}
}

// SoraServerConfig configures a SoraServer.
type SoraServerConfig struct {
	// SecretKey, when set, requires metadata.access_token to be an HS256
	// token for the connecting channel.
	SecretKey string
	// PingInterval, when positive, sends {"type":"ping","stats":true}.
	PingInterval time.Duration
}

// NewSoraServer starts a server and closes it when the test ends.
func NewSoraServer(t testing.TB, cfg SoraServerConfig) *SoraServer {
	s := &SoraServer{
		cfg:   cfg,
		log:   zaptest.NewLogger(t).Named("sora-server"),
		peers: map[*rtc.Peer]struct{}{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// signaling URL.
func (s *SoraServer) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/signaling"
}

// Close drops every connection and stops the server.
func (s *SoraServer) Close() {
	s.srv.CloseClientConnections()
	s.srv.Close()
	s.mu.Lock()
	peers := s.peers
	s.peers = map[*rtc.Peer]struct{}{}
	s.mu.Unlock()
	for p := range peers {
		_ = p.Close()
	}
}

// Connects returns the connect messages received so far.
func (s *SoraServer) Connects() []signaling.SoraConnect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signaling.SoraConnect(nil), s.connects...)
}

// Pongs returns the pong messages received so far.
func (s *SoraServer) Pongs() []signaling.SoraPong {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signaling.SoraPong(nil), s.pongs...)
}

func (s *SoraServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := signaling.Accept(w, r)
	if err != nil {
		return
	}
	defer conn.Close()

	typ, raw, err := conn.Receive()
	if err != nil || typ != "connect" {
		return
	}
	var msg signaling.SoraConnect
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	s.mu.Lock()
	s.connects = append(s.connects, msg)
	s.mu.Unlock()

	if err := s.authenticate(msg); err != nil {
		s.log.Warn("connect rejected", zap.Error(err))
		return
	}

	peer, err := s.newPeer(msg, conn)
	if err != nil {
		s.log.Error("create peer", zap.Error(err))
		return
	}
	defer s.removePeer(peer)

	offer, err := peer.CreateOffer()
	if err != nil {
		s.log.Error("create offer", zap.Error(err))
		return
	}
	if err := conn.Send(signaling.SoraOffer{
		Type:         "offer",
		SDP:          offer.SDP,
		ClientID:     uuid.NewString(),
		ConnectionID: uuid.NewString(),
	}); err != nil {
		return
	}

	if s.cfg.PingInterval > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go s.ping(conn, stop)
	}

	for {
		typ, raw, err := conn.Receive()
		if err != nil {
			return
		}
		switch typ {
		case "answer", "re-answer":
			var m signaling.SDP
			if err := json.Unmarshal(raw, &m); err != nil {
				return
			}
			if err := peer.AcceptAnswer(m.Description()); err != nil {
				s.log.Error("accept answer", zap.Error(err))
				return
			}
		case "candidate":
			var m signaling.SoraCandidate
			if err := json.Unmarshal(raw, &m); err != nil {
				return
			}
			_ = peer.AddICECandidate(webrtc.ICECandidateInit{Candidate: m.Candidate})
		case "pong":
			var m signaling.SoraPong
			if err := json.Unmarshal(raw, &m); err == nil {
				s.mu.Lock()
				s.pongs = append(s.pongs, m)
				s.mu.Unlock()
			}
		case "disconnect":
			return
		}
	}
}

func (s *SoraServer) ping(conn *signaling.Conn, stop <-chan struct{}) {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := conn.Send(signaling.SoraPing{Type: "ping", Stats: true}); err != nil {
				return
			}
		}
	}
}

func (s *SoraServer) authenticate(msg signaling.SoraConnect) error {
	if s.cfg.SecretKey == "" {
		return nil
	}
	token, _ := msg.Metadata["access_token"].(string)
	if token == "" {
		return errors.New("metadata.access_token missing")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.SecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("verify access token: %w", err)
	}
	if claims["channel_id"] != msg.ChannelID {
		return fmt.Errorf("token is for channel %v, not %q", claims["channel_id"], msg.ChannelID)
	}
	return nil
}

// newPeer builds the SFU side, mirroring the client's role.
func (s *SoraServer) newPeer(msg signaling.SoraConnect, conn *signaling.Conn) (*rtc.Peer, error) {
	dir := rtc.SendRecv
	switch msg.Role {
	case "sendonly":
		dir = rtc.RecvOnly
	case "recvonly":
		dir = rtc.SendOnly
	}
	cfg := rtc.Config{
		Direction: dir,
		Video:     msg.Video != false,
		Audio:     msg.Audio != false,
		Logger:    s.log,
	}
	if m, ok := msg.Video.(map[string]any); ok {
		cfg.VideoCodec, _ = m["codec_type"].(string)
	}
	if m, ok := msg.Audio.(map[string]any); ok {
		cfg.AudioCodec, _ = m["codec_type"].(string)
	}
	peer, err := rtc.NewPeer(cfg)
	if err != nil {
		return nil, err
	}
	peer.OnICECandidate(func(c webrtc.ICECandidateInit) {
		_ = conn.Send(signaling.SoraCandidate{Type: "candidate", Candidate: c.Candidate})
	})
	s.mu.Lock()
	s.peers[peer] = struct{}{}
	s.mu.Unlock()
	return peer, nil
}

func (s *SoraServer) removePeer(p *rtc.Peer) {
	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()
	_ = p.Close()
}
