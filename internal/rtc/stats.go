package rtc

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

// Stats returns the connection's statistics as flat JSON-style maps, in
// the shape the client's metrics endpoint reports them. Transport entries
// carry live dtlsState and iceState; RTP entries come from the stats
// interceptor and the local feedback counters.
func (p *Peer) Stats() []map[string]any {
	now := float64(time.Now().UnixMicro()) / 1000
	used := p.usedCodecs()

	var out []map[string]any
	codecIDs := map[string]string{}
	haveTransport := false
	for _, s := range p.pc.GetStats() {
		m, err := toMap(s)
		if err != nil {
			p.log.Debug("skip stats entry")
			continue
		}
		switch m["type"] {
		case "codec":
			key := codecKey(m["mimeType"], m["payloadType"])
			if len(used) > 0 && !used[key] {
				continue
			}
			codecIDs[key], _ = m["id"].(string)
		case "transport":
			haveTransport = true
			p.transportStates(m)
		}
		out = append(out, m)
	}
	if !haveTransport {
		m := map[string]any{"type": "transport", "id": "iceTransport", "timestamp": now}
		p.transportStates(m)
		out = append(out, m)
	}
	out = append(out, p.rtpStats(now, codecIDs)...)

	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := out[i]["type"].(string)
		tj, _ := out[j]["type"].(string)
		if ti != tj {
			return ti < tj
		}
		ii, _ := out[i]["id"].(string)
		ij, _ := out[j]["id"].(string)
		return ii < ij
	})
	return out
}

func (p *Peer) transportStates(m map[string]any) {
	dtls := p.pc.SCTP().Transport()
	m["dtlsState"] = dtls.State().String()
	m["iceState"] = dtls.ICETransport().State().String()
}

func (p *Peer) rtpStats(now float64, codecIDs map[string]string) []map[string]any {
	getter := p.statsGetter()
	var out []map[string]any

	for _, lm := range p.localMedia() {
		params := lm.sender.GetParameters()
		var codec webrtc.RTPCodecParameters
		if len(params.Codecs) > 0 {
			codec = params.Codecs[0]
		}
		for _, enc := range params.Encodings {
			ssrc := uint32(enc.SSRC)
			m := map[string]any{
				"type":                  "outbound-rtp",
				"id":                    fmt.Sprintf("OT%d", ssrc),
				"timestamp":             now,
				"ssrc":                  ssrc,
				"kind":                  lm.kind.String(),
				"codecId":               codecIDs[codecKey(codec.MimeType, float64(codec.PayloadType))],
				"mimeType":              codec.MimeType,
				"packetsSent":           0,
				"bytesSent":             0,
				"headerBytesSent":       0,
				"pliCount":              lm.pli.Load(),
				"firCount":              lm.fir.Load(),
				"nackCount":             lm.nack.Load(),
				"encoderImplementation": p.cfg.EncoderImplementation,
			}
			if lm.kind == webrtc.RTPCodecTypeVideo {
				m["framesEncoded"] = lm.frames.Load()
				m["keyFramesEncoded"] = lm.keyFrames.Load()
			}
			if getter != nil {
				if st := getter.Get(ssrc); st != nil {
					m["packetsSent"] = st.OutboundRTPStreamStats.PacketsSent
					m["bytesSent"] = st.OutboundRTPStreamStats.BytesSent
					m["headerBytesSent"] = st.OutboundRTPStreamStats.HeaderBytesSent
					if rtt := st.RemoteInboundRTPStreamStats.RoundTripTime; rtt > 0 {
						out = append(out, map[string]any{
							"type":          "remote-inbound-rtp",
							"id":            fmt.Sprintf("RI%d", ssrc),
							"timestamp":     now,
							"ssrc":          ssrc,
							"kind":          lm.kind.String(),
							"localId":       fmt.Sprintf("OT%d", ssrc),
							"roundTripTime": rtt.Seconds(),
							"fractionLost":  st.RemoteInboundRTPStreamStats.FractionLost,
							"packetsLost":   st.RemoteInboundRTPStreamStats.PacketsLost,
						})
					}
				}
			}
			out = append(out, m)
		}
	}

	for _, t := range p.pc.GetTransceivers() {
		r := t.Receiver()
		if r == nil {
			continue
		}
		for _, track := range r.Tracks() {
			ssrc := uint32(track.SSRC())
			if ssrc == 0 {
				continue
			}
			codec := track.Codec()
			m := map[string]any{
				"type":                  "inbound-rtp",
				"id":                    fmt.Sprintf("IT%d", ssrc),
				"timestamp":             now,
				"ssrc":                  ssrc,
				"kind":                  track.Kind().String(),
				"codecId":               codecIDs[codecKey(codec.MimeType, float64(codec.PayloadType))],
				"mimeType":              codec.MimeType,
				"packetsReceived":       0,
				"packetsLost":           0,
				"jitter":                0,
				"bytesReceived":         0,
				"decoderImplementation": p.cfg.DecoderImplementation,
			}
			if getter != nil {
				if st := getter.Get(ssrc); st != nil {
					in := st.InboundRTPStreamStats
					m["packetsReceived"] = in.PacketsReceived
					m["packetsLost"] = in.PacketsLost
					m["jitter"] = in.Jitter
					m["bytesReceived"] = in.BytesReceived
					m["headerBytesReceived"] = in.HeaderBytesReceived
					m["pliCount"] = in.PLICount
					m["firCount"] = in.FIRCount
					m["nackCount"] = in.NACKCount
				}
			}
			out = append(out, m)
		}
	}
	return out
}

// usedCodecs returns the codecs bound to senders or receivers. Before any
// media flows it is empty and every registered codec is reported.
func (p *Peer) usedCodecs() map[string]bool {
	used := map[string]bool{}
	for _, t := range p.pc.GetTransceivers() {
		if s := t.Sender(); s != nil && s.Track() != nil {
			if codecs := s.GetParameters().Codecs; len(codecs) > 0 {
				used[codecKey(codecs[0].MimeType, float64(codecs[0].PayloadType))] = true
			}
		}
		if r := t.Receiver(); r != nil {
			for _, track := range r.Tracks() {
				if track.SSRC() == 0 {
					continue
				}
				c := track.Codec()
				used[codecKey(c.MimeType, float64(c.PayloadType))] = true
			}
		}
	}
	return used
}

func codecKey(mime, pt any) string {
	m, _ := mime.(string)
	n, _ := pt.(float64)
	return fmt.Sprintf("%s/%d", strings.ToLower(m), int(n))
}

func toMap(s webrtc.Stats) (map[string]any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
