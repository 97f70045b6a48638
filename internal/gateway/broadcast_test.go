package gateway

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"
)

// buildEnvelope reproduces the hand-crafted JSON logic from
// Broadcaster.Broadcast so the envelope format can be tested without
// Redis or WebSocket dependencies.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// envelope is the parsed WS message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

// TestBroadcastEnvelopeFormat verifies the hand-crafted JSON envelope matches
// the expected structure: {"channel":"...","data":...,"ts":"...","seq":N,"channel_seq":N}
func TestBroadcastEnvelopeFormat(t *testing.T) {
	channel := "pub:signals:frxEURUSD"
	data := []byte(`{"type":"signal_opened","symbol":"frxEURUSD","signal":{"signal_id":"sig_1","entry":1.085},"ts":"2026-02-25T10:00:00Z"}`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)

	buf := buildEnvelope(channel, data, now, 42, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}

	if env.Channel != channel {
		t.Errorf("channel: got %q, want %q", env.Channel, channel)
	}
	if env.Seq != 42 {
		t.Errorf("seq: got %d, want 42", env.Seq)
	}
	if env.ChannelSeq != 7 {
		t.Errorf("channel_seq: got %d, want 7", env.ChannelSeq)
	}

	var event map[string]interface{}
	if err := json.Unmarshal(env.Data, &event); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if event["type"] != "signal_opened" {
		t.Errorf("data type: got %v, want signal_opened", event["type"])
	}

	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil {
		t.Errorf("ts is not valid RFC3339Nano: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("ts: got %v, want %v", parsed, now)
	}
}

// TestBroadcastEnvelopeNestedData tests envelope with nested data payload.
func TestBroadcastEnvelopeNestedData(t *testing.T) {
	channel := "pub:signals:frxGBPUSD"
	data := []byte(`{"type":"session_update","session_stats":{"total_pips":70,"winning_trades":2},"arr":[1,2,3]}`)

	buf := buildEnvelope(channel, data, time.Now().UTC(), 999, 12)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Seq != 999 {
		t.Errorf("seq: got %d, want 999", env.Seq)
	}
	if env.ChannelSeq != 12 {
		t.Errorf("channel_seq: got %d, want 12", env.ChannelSeq)
	}
}

// TestChannelSymbol tests symbol extraction from PubSub channel names.
func TestChannelSymbol(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    string
	}{
		{"eurusd", "pub:signals:frxEURUSD", "frxEURUSD"},
		{"gbpusd", "pub:signals:frxGBPUSD", "frxGBPUSD"},
		{"all_channel", "pub:signals:all", ""},
		{"unrelated", "pub:other:thing", ""},
		{"garbage", "garbage", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := channelSymbol(tt.channel); got != tt.want {
				t.Errorf("channelSymbol(%q) = %q, want %q", tt.channel, got, tt.want)
			}
		})
	}
}

// TestClientSymbolFilter verifies per-client symbol subscription filtering.
func TestClientSymbolFilter(t *testing.T) {
	c := &Client{symbols: make(map[string]bool)}

	// No subscription: receive everything
	if !c.wantsSymbol("frxEURUSD") {
		t.Error("unfiltered client should receive frxEURUSD")
	}

	c.setSymbols([]string{"frxEURUSD"})
	if !c.wantsSymbol("frxEURUSD") {
		t.Error("subscribed client should receive frxEURUSD")
	}
	if c.wantsSymbol("frxGBPUSD") {
		t.Error("subscribed client should not receive frxGBPUSD")
	}
	// Non-data messages always deliver
	if !c.wantsSymbol("") {
		t.Error("non-data messages should always deliver")
	}

	// Unsubscribe restores receive-everything
	c.setSymbols(nil)
	if !c.wantsSymbol("frxGBPUSD") {
		t.Error("unsubscribed client should receive everything again")
	}
}

// TestEnvelopeSeqMonotonic verifies sequence numbers are reflected correctly.
func TestEnvelopeSeqMonotonic(t *testing.T) {
	channel := "pub:signals:frxEURUSD"
	data := []byte(`{}`)
	now := time.Now().UTC()

	for i := int64(1); i <= 100; i++ {
		buf := buildEnvelope(channel, data, now, i, i)
		var env envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			t.Fatalf("seq=%d: invalid JSON: %v", i, err)
		}
		if env.Seq != i || env.ChannelSeq != i {
			t.Errorf("seq: got %d/%d, want %d", env.Seq, env.ChannelSeq, i)
		}
	}
}

// TestBroadcaster_PerChannelSeq verifies that per-channel seq tracks
// independently across channels while the global seq advances.
func TestBroadcaster_PerChannelSeq(t *testing.T) {
	channelA := "pub:signals:frxEURUSD"
	channelB := "pub:signals:frxGBPUSD"
	data := []byte(`{}`)
	now := time.Now().UTC()

	var globalSeq int64

	for i := int64(1); i <= 3; i++ {
		globalSeq++
		buf := buildEnvelope(channelA, data, now, globalSeq, i)
		var env envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			t.Fatalf("channelA seq=%d: invalid JSON: %v", i, err)
		}
		if env.ChannelSeq != i {
			t.Errorf("channelA channel_seq: got %d, want %d", env.ChannelSeq, i)
		}
		if env.Seq != globalSeq {
			t.Errorf("channelA global seq: got %d, want %d", env.Seq, globalSeq)
		}
	}

	for i := int64(1); i <= 2; i++ {
		globalSeq++
		buf := buildEnvelope(channelB, data, now, globalSeq, i)
		var env envelope
		if err := json.Unmarshal(buf, &env); err != nil {
			t.Fatalf("channelB seq=%d: invalid JSON: %v", i, err)
		}
		if env.ChannelSeq != i {
			t.Errorf("channelB channel_seq: got %d, want %d", env.ChannelSeq, i)
		}
		if env.Channel != channelB {
			t.Errorf("channelB: got %q, want %q", env.Channel, channelB)
		}
	}

	// 3 from A + 2 from B
	if globalSeq != 5 {
		t.Errorf("global seq: got %d, want 5", globalSeq)
	}
}
