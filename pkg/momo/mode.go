package momo

import "fmt"

// Mode selects the signaling mode the client runs in.
type Mode string

const (
	// ModeP2P serves a browser page and signals directly over /ws.
	ModeP2P Mode = "p2p"
	// ModeAyame connects to an Ayame signaling server.
	ModeAyame Mode = "ayame"
	// ModeSora connects to a Sora SFU.
	ModeSora Mode = "sora"
)

// Modes lists every mode in canonical order.
var Modes = []Mode{ModeP2P, ModeAyame, ModeSora}

// DisplayName returns the human-facing name used in error messages.
func (m Mode) DisplayName() string {
	switch m {
	case ModeP2P:
		return "P2P"
	case ModeAyame:
		return "Ayame"
	case ModeSora:
		return "Sora"
	default:
		return string(m)
	}
}

// ParseMode validates a mode token.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q (want p2p, ayame or sora)", s)
}
