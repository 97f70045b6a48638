package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier delivers alerts through the Telegram Bot API. Signal
// alerts are rendered as a trade card with the levels; everything else gets
// the plain title/message layout.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramAPIBase,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       renderTelegramText(alert),
		"parse_mode": "MarkdownV2",
	})

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[telegram] sent alert: %s", alert.Title)
	return nil
}

// renderTelegramText formats an alert as MarkdownV2. Prices sit in code
// spans, which MarkdownV2 leaves unescaped.
func renderTelegramText(alert Alert) string {
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}

	sig := alert.Signal
	if sig == nil {
		return fmt.Sprintf("%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
	}

	direction := "SELL 🔻"
	if sig.IsBullish() {
		direction = "BUY 🔺"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s %s* %s\n", emoji,
		escapeMarkdown(sig.Symbol), escapeMarkdown(string(sig.Timeframe)), direction)
	fmt.Fprintf(&b, "Entry: `%.5f`\n", sig.Entry)
	fmt.Fprintf(&b, "Stop: `%.5f`\n", sig.StopLoss)
	fmt.Fprintf(&b, "Target: `%.5f` %s\n", sig.TakeProfit,
		escapeMarkdown(fmt.Sprintf("(%.1f pips, %s)", sig.PipsTarget, sig.Style)))
	fmt.Fprintf(&b, "Confidence: %s\n",
		escapeMarkdown(fmt.Sprintf("%.0f%%", sig.Confidence*100)))
	if sig.Synthetic {
		b.WriteString("⚠️ generated from synthetic data\n")
	}
	return b.String()
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
