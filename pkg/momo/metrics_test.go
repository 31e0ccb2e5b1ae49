package momo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := decodeSnapshot([]byte(`{
		"version": "WebRTC Native Client Momo 2025.1.0",
		"libwebrtc": "Shiguredo-build m136",
		"environment": "[x86_64] linux",
		"stats": [
			{"type": "codec", "id": "C1", "mimeType": "video/H264", "payloadType": 102, "clockRate": 90000},
			{"type": "codec", "id": "C2", "mimeType": "audio/opus", "payloadType": 111},
			{"type": "transport", "id": "T1", "dtlsState": "connected", "iceState": "checking"},
			{"type": "outbound-rtp", "id": "O1", "kind": "video", "packetsSent": 10, "encoderImplementation": "libvpl"}
		]
	}`))
	require.NoError(t, err)
	return snap
}

func TestWaitCondition_MatchedBy(t *testing.T) {
	snap := testSnapshot(t)
	codec := snap.Stats[0]

	tests := []struct {
		name string
		cond WaitCondition
		want bool
	}{
		{"type only", WaitCondition{"type": "codec"}, true},
		{"type and field", WaitCondition{"type": "codec", "mimeType": "video/H264"}, true},
		{"int matches float", WaitCondition{"type": "codec", "clockRate": 90000}, true},
		{"wrong value", WaitCondition{"type": "codec", "mimeType": "video/VP8"}, false},
		{"missing key", WaitCondition{"type": "codec", "sdpFmtpLine": "x"}, false},
		{"wrong type", WaitCondition{"type": "transport"}, false},
		{"no type key", WaitCondition{"mimeType": "video/H264"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.MatchedBy(codec))
		})
	}
}

func TestSnapshot_UnmetAndSatisfies(t *testing.T) {
	snap := testSnapshot(t)

	met := []WaitCondition{
		{"type": "codec", "mimeType": "audio/opus"},
		{"type": "outbound-rtp", "encoderImplementation": "libvpl"},
	}
	assert.True(t, snap.Satisfies(met))
	assert.Empty(t, snap.Unmet(met))

	assert.False(t, snap.Satisfies(ConnectionConditions))
	unmet := snap.Unmet(ConnectionConditions)
	require.Len(t, unmet, 1)
	assert.Equal(t, "checking", snap.Stats[2]["iceState"])
	assert.Equal(t, "{iceState=connected type=transport}", unmet[0].String())
}

func TestSnapshot_Find(t *testing.T) {
	snap := testSnapshot(t)

	e, ok := snap.Find(map[string]any{"kind": "video"})
	require.True(t, ok)
	assert.Equal(t, "outbound-rtp", e.Type())
	n, ok := e.Number("packetsSent")
	require.True(t, ok)
	assert.Equal(t, 10.0, n)
	s, ok := e.String("encoderImplementation")
	require.True(t, ok)
	assert.Equal(t, "libvpl", s)
	_, ok = e.Bool("packetsSent")
	assert.False(t, ok)

	assert.Len(t, snap.FindAll(map[string]any{"type": "codec"}), 2)
	_, ok = snap.Find(map[string]any{"type": "inbound-rtp"})
	assert.False(t, ok)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(float64(3), 3))
	assert.True(t, valuesEqual(float64(3), uint32(3)))
	assert.False(t, valuesEqual(float64(3), "3"))
	assert.True(t, valuesEqual(true, true))
	assert.False(t, valuesEqual("true", true))
	assert.True(t, valuesEqual([]any{"a", float64(1)}, []any{"a", 1}))
	assert.True(t, valuesEqual(map[string]any{"k": "v"}, map[string]any{"k": "v"}))
	assert.True(t, valuesEqual(nil, nil))
}

func TestWaitOptions_Defaults(t *testing.T) {
	o := WaitOptions{Settle: -1}.withDefaults()
	assert.Equal(t, DefaultWaitOptions().Timeout, o.Timeout)
	assert.Equal(t, DefaultWaitOptions().Interval, o.Interval)
	assert.Zero(t, o.Settle)
}
