package momotest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/thesyncim/momo-e2e/internal/signaling"
)

// AyameServer is an in-process Ayame signaling server. A room holds at
// most two clients; the second one is told isExistUser=true and every
// later message is relayed verbatim to the other member.
type AyameServer struct {
	srv *httptest.Server
	cfg AyameServerConfig

	mu        sync.Mutex
	rooms     map[string][]*ayameMember
	registers []signaling.AyameRegister
}

type ayameMember struct {
	id   string
	conn *signaling.Conn
}

// AyameServerConfig configures an AyameServer.
type AyameServerConfig struct {
	// Key, when set, must match the register message's key.
	Key string
	// ICEServers are returned in accept.
	ICEServers []signaling.ICEServer
}

// NewAyameServer starts a server and closes it when the test ends.
func NewAyameServer(t testing.TB, cfg AyameServerConfig) *AyameServer {
	s := &AyameServer{cfg: cfg, rooms: map[string][]*ayameMember{}}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// signaling URL.
func (s *AyameServer) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/signaling"
}

// Close stops the server.
func (s *AyameServer) Close() {
	s.srv.CloseClientConnections()
	s.srv.Close()
}

// Registers returns the register messages received so far.
func (s *AyameServer) Registers() []signaling.AyameRegister {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signaling.AyameRegister(nil), s.registers...)
}

// RoomSize reports how many clients are in room.
func (s *AyameServer) RoomSize(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[room])
}

func (s *AyameServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := signaling.Accept(w, r)
	if err != nil {
		return
	}
	defer conn.Close()

	typ, raw, err := conn.Receive()
	if err != nil || typ != "register" {
		return
	}
	var reg signaling.AyameRegister
	if err := json.Unmarshal(raw, &reg); err != nil {
		return
	}

	me := &ayameMember{id: reg.ClientID, conn: conn}
	exist, reason := s.join(reg, me)
	if reason != "" {
		_ = conn.Send(signaling.AyameReject{Type: "reject", Reason: reason})
		return
	}
	defer s.leave(reg.RoomID, me)
	if err := conn.Send(signaling.AyameAccept{Type: "accept", ICEServers: s.cfg.ICEServers, IsExistUser: exist}); err != nil {
		return
	}

	for {
		typ, raw, err := conn.Receive()
		if err != nil {
			return
		}
		if typ == "pong" {
			continue
		}
		if other := s.other(reg.RoomID, me); other != nil {
			_ = other.conn.Send(json.RawMessage(raw))
		}
	}
}

func (s *AyameServer) join(reg signaling.AyameRegister, me *ayameMember) (exist bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers = append(s.registers, reg)
	if s.cfg.Key != "" && reg.Key != s.cfg.Key {
		return false, "InvalidSignalingKey"
	}
	members := s.rooms[reg.RoomID]
	if len(members) >= 2 {
		return false, "full"
	}
	s.rooms[reg.RoomID] = append(members, me)
	return len(members) == 1, ""
}

func (s *AyameServer) leave(room string, me *ayameMember) {
	s.mu.Lock()
	members := s.rooms[room]
	var rest []*ayameMember
	for _, m := range members {
		if m != me {
			rest = append(rest, m)
		}
	}
	if len(rest) == 0 {
		delete(s.rooms, room)
	} else {
		s.rooms[room] = rest
	}
	s.mu.Unlock()

	for _, m := range rest {
		_ = m.conn.Send(signaling.Simple{Type: "bye"})
	}
}

func (s *AyameServer) other(room string, me *ayameMember) *ayameMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.rooms[room] {
		if m != me {
			return m
		}
	}
	return nil
}
