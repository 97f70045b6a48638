package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

func cardSignal() *model.Signal {
	return &model.Signal{
		ID: "sig_frxEURUSD_H1_1", Symbol: "frxEURUSD", Timeframe: model.TFH1,
		Type:  model.FVGBullish,
		Entry: 1.0850, StopLoss: 1.0825, TakeProfit: 1.0900,
		PipsTarget: 50.0, Style: model.StyleSwing,
		Confidence: 0.85,
		CreatedAt:  time.Now().UTC(), Status: model.SignalActive,
	}
}

func TestRenderTelegramText_SignalCard(t *testing.T) {
	text := renderTelegramText(Alert{
		Level:  AlertInfo,
		Title:  "New BUY signal: frxEURUSD H1",
		Signal: cardSignal(),
	})

	for _, want := range []string{
		"BUY",
		"*frxEURUSD H1*",
		"Entry: `1.08500`",
		"Stop: `1.08250`",
		"Target: `1.09000`",
		`\(50\.0 pips, swing\)`,
		`Confidence: 85%`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("card missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "synthetic") {
		t.Error("live signal card mentions synthetic data")
	}

	sell := cardSignal()
	sell.Type = model.FVGBearish
	if text := renderTelegramText(Alert{Signal: sell}); !strings.Contains(text, "SELL") {
		t.Errorf("bearish card missing SELL:\n%s", text)
	}

	syn := cardSignal()
	syn.Synthetic = true
	if text := renderTelegramText(Alert{Signal: syn}); !strings.Contains(text, "synthetic data") {
		t.Errorf("synthetic card missing the data warning:\n%s", text)
	}
}

func TestRenderTelegramText_PlainAlert(t *testing.T) {
	text := renderTelegramText(Alert{
		Level:   AlertWarning,
		Title:   "Market feed degraded: frxEURUSD",
		Message: "Signals for this symbol are being generated from synthetic data.",
	})

	if !strings.HasPrefix(text, "⚠️ ") {
		t.Errorf("warning alert lacks the warning marker: %q", text)
	}
	// MarkdownV2 requires '.' escaped outside code spans.
	if !strings.Contains(text, `synthetic data\.`) {
		t.Errorf("message not escaped for MarkdownV2: %q", text)
	}
}

func TestTelegramSend(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottok123/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok123", "chat42")
	n.baseURL = srv.URL

	err := n.Send(context.Background(), Alert{Level: AlertInfo, Signal: cardSignal()})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["chat_id"] != "chat42" {
		t.Errorf("chat_id = %v", got["chat_id"])
	}
	if got["parse_mode"] != "MarkdownV2" {
		t.Errorf("parse_mode = %v", got["parse_mode"])
	}
	if text, _ := got["text"].(string); !strings.Contains(text, "Entry: `1.08500`") {
		t.Errorf("posted text = %q", text)
	}
}

func TestTelegramSend_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "chat")
	n.baseURL = srv.URL

	if err := n.Send(context.Background(), Alert{Title: "x"}); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
