package momo

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Snapshot is one response of the client's /metrics endpoint.
type Snapshot struct {
	Version     string      `json:"version"`
	LibWebRTC   string      `json:"libwebrtc"`
	Environment string      `json:"environment"`
	Stats       []StatEntry `json:"stats"`
}

// StatEntry is one WebRTC statistics object. Only "type" is guaranteed;
// the other fields depend on the type.
type StatEntry map[string]any

// Type returns the "type" discriminator, e.g. "outbound-rtp".
func (e StatEntry) Type() string {
	s, _ := e.String("type")
	return s
}

// String returns a string field.
func (e StatEntry) String(key string) (string, bool) {
	s, ok := e[key].(string)
	return s, ok
}

// Number returns a numeric field. JSON numbers decode as float64.
func (e StatEntry) Number(key string) (float64, bool) {
	return toFloat(e[key])
}

// Bool returns a boolean field.
func (e StatEntry) Bool(key string) (bool, bool) {
	b, ok := e[key].(bool)
	return b, ok
}

// Matches reports whether every key of filter is present in e with an
// equal value. Unlike WaitCondition it does not require a type key.
func (e StatEntry) Matches(filter map[string]any) bool {
	for k, want := range filter {
		got, ok := e[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// WaitCondition is a partial StatEntry used as a predicate. It must carry a
// "type" key; every key must be present in the entry with an equal value.
type WaitCondition map[string]any

// MatchedBy reports whether e satisfies the condition.
func (c WaitCondition) MatchedBy(e StatEntry) bool {
	typ, ok := c["type"]
	if !ok || !valuesEqual(e["type"], typ) {
		return false
	}
	return e.Matches(c)
}

// String renders the condition with sorted keys, for error messages.
func (c WaitCondition) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, c[k])
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// WaitOptions bounds WaitForStats.
type WaitOptions struct {
	Timeout  time.Duration // total polling budget
	Settle   time.Duration // sleep after the conditions are met
	Interval time.Duration // pause between polls
}

// DefaultWaitOptions returns a 5s timeout polled every 500ms, no settle.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{Timeout: 5 * time.Second, Interval: 500 * time.Millisecond}
}

func (o WaitOptions) withDefaults() WaitOptions {
	d := DefaultWaitOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	return o
}

// ConnectionConditions are the conditions WaitForConnection polls for.
var ConnectionConditions = []WaitCondition{
	{"type": "transport", "dtlsState": "connected"},
	{"type": "transport", "iceState": "connected"},
}

// Find returns the first entry matching filter.
func (s *Snapshot) Find(filter map[string]any) (StatEntry, bool) {
	for _, e := range s.Stats {
		if e.Matches(filter) {
			return e, true
		}
	}
	return nil, false
}

// FindAll returns every entry matching filter.
func (s *Snapshot) FindAll(filter map[string]any) []StatEntry {
	var out []StatEntry
	for _, e := range s.Stats {
		if e.Matches(filter) {
			out = append(out, e)
		}
	}
	return out
}

// Unmet returns the conditions no entry of s satisfies, in input order.
func (s *Snapshot) Unmet(conds []WaitCondition) []WaitCondition {
	var unmet []WaitCondition
	for _, c := range conds {
		found := false
		for _, e := range s.Stats {
			if c.MatchedBy(e) {
				found = true
				break
			}
		}
		if !found {
			unmet = append(unmet, c)
		}
	}
	return unmet
}

// Satisfies reports whether every condition is met by some entry.
func (s *Snapshot) Satisfies(conds []WaitCondition) bool {
	return len(s.Unmet(conds)) == 0
}

func decodeSnapshot(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return &s, nil
}

// valuesEqual compares a decoded JSON value with a caller-supplied one.
// Numbers compare by value so an int condition matches a float64 field.
func valuesEqual(got, want any) bool {
	if gf, ok := toFloat(got); ok {
		wf, ok := toFloat(want)
		return ok && gf == wf
	}
	switch g := got.(type) {
	case string, bool, nil:
		return got == want
	case []any, map[string]any:
		gb, err1 := json.Marshal(g)
		wb, err2 := json.Marshal(want)
		return err1 == nil && err2 == nil && string(gb) == string(wb)
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
