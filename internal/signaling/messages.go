package signaling

import "github.com/pion/webrtc/v4"

// ICE is the candidate object used by the P2P and Ayame protocols.
type ICE struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// ToInit converts to pion's candidate type.
func (i ICE) ToInit() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: i.Candidate, SDPMid: i.SDPMid, SDPMLineIndex: i.SDPMLineIndex}
}

// ICEFromInit converts from pion's candidate type.
func ICEFromInit(c webrtc.ICECandidateInit) ICE {
	return ICE{Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: c.SDPMLineIndex}
}

// SDP is an offer or answer: {"type":"offer","sdp":"..."}.
type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Description converts to a pion session description.
func (s SDP) Description() webrtc.SessionDescription {
	typ := webrtc.SDPTypeOffer
	if s.Type == "answer" || s.Type == "re-answer" {
		typ = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: typ, SDP: s.SDP}
}

// Candidate is {"type":"candidate","ice":{...}}.
type Candidate struct {
	Type string `json:"type"`
	ICE  ICE    `json:"ice"`
}

// Simple is a message with no payload, e.g. ping, pong, close, bye.
type Simple struct {
	Type string `json:"type"`
}

// AyameRegister is the first message a client sends to an Ayame server.
type AyameRegister struct {
	Type        string `json:"type"`
	ClientID    string `json:"clientId"`
	RoomID      string `json:"roomId"`
	Key         string `json:"key,omitempty"`
	AyameClient string `json:"ayameClient,omitempty"`
	LibWebRTC   string `json:"libwebrtc,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// ICEServer is an entry of Ayame's accept.iceServers.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// AyameAccept answers a successful register.
type AyameAccept struct {
	Type        string      `json:"type"`
	ICEServers  []ICEServer `json:"iceServers,omitempty"`
	IsExistUser bool        `json:"isExistUser"`
}

// AyameReject answers a refused register.
type AyameReject struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// SoraMedia is the video or audio member of a Sora connect message.
type SoraMedia struct {
	CodecType string `json:"codec_type,omitempty"`
	BitRate   int    `json:"bit_rate,omitempty"`
}

// SoraConnect is the first message a client sends to Sora.
type SoraConnect struct {
	Type                      string         `json:"type"`
	Role                      string         `json:"role"`
	ChannelID                 string         `json:"channel_id"`
	SoraClient                string         `json:"sora_client,omitempty"`
	LibWebRTC                 string         `json:"libwebrtc,omitempty"`
	Environment               string         `json:"environment,omitempty"`
	Metadata                  map[string]any `json:"metadata,omitempty"`
	Video                     any            `json:"video"` // false or SoraMedia
	Audio                     any            `json:"audio"` // false or SoraMedia
	Multistream               *bool          `json:"multistream,omitempty"`
	Spotlight                 *bool          `json:"spotlight,omitempty"`
	SpotlightNumber           *int           `json:"spotlight_number,omitempty"`
	Simulcast                 *bool          `json:"simulcast,omitempty"`
	DataChannelSignaling      *bool          `json:"data_channel_signaling,omitempty"`
	IgnoreDisconnectWebsocket *bool          `json:"ignore_disconnect_websocket,omitempty"`
}

// SoraOffer is Sora's reply to connect.
type SoraOffer struct {
	Type         string `json:"type"`
	SDP          string `json:"sdp"`
	ClientID     string `json:"client_id"`
	ConnectionID string `json:"connection_id"`
}

// SoraCandidate carries a bare candidate line.
type SoraCandidate struct {
	Type      string `json:"type"`
	Candidate string `json:"candidate"`
}

// SoraPing may ask for stats in the pong.
type SoraPing struct {
	Type  string `json:"type"`
	Stats bool   `json:"stats"`
}

// SoraPong answers a ping.
type SoraPong struct {
	Type  string           `json:"type"`
	Stats []map[string]any `json:"stats,omitempty"`
}

// SoraRedirect points the client at another signaling URL.
type SoraRedirect struct {
	Type     string `json:"type"`
	Location string `json:"location"`
}

// SoraNotify is an event notification.
type SoraNotify struct {
	Type      string `json:"type"`
	EventType string `json:"event_type"`
}
