package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrDeliveryFailed wraps every failed notification attempt.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// DeliveryOutcome reports what the channel answered.
type DeliveryOutcome struct {
	Status  int
	Details string
}

// Notifier 定义消息投递接口。
type Notifier interface {
	Send(ctx context.Context, message string) (DeliveryOutcome, error)
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Send 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Send(ctx context.Context, message string) (DeliveryOutcome, error) {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return DeliveryOutcome{}, fmt.Errorf("%w: marshal telegram payload: %v", ErrDeliveryFailed, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return DeliveryOutcome{}, fmt.Errorf("%w: create telegram request: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// the transport error embeds the URL, which carries the bot token
		return DeliveryOutcome{}, fmt.Errorf("%w: send telegram request: %s", ErrDeliveryFailed, n.redact(err.Error()))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	outcome := DeliveryOutcome{Status: resp.StatusCode, Details: strings.TrimSpace(string(raw))}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return outcome, fmt.Errorf("%w: telegram 响应码异常: %d", ErrDeliveryFailed, resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &result); err == nil {
		if !result.OK {
			return outcome, fmt.Errorf("%w: telegram 返回 ok=false: %s", ErrDeliveryFailed, result.Description)
		}
	}

	n.logger.Info().Int("status", outcome.Status).Msg("消息已发送 (Telegram)")
	return outcome, nil
}

func (n *TelegramNotifier) redact(s string) string {
	if n.botToken == "" {
		return s
	}
	return strings.ReplaceAll(s, n.botToken, "<redacted>")
}

// LogNotifier writes messages to the log instead of a remote channel.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-based notifier for development runs.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Send logs the message and always succeeds.
func (n *LogNotifier) Send(ctx context.Context, message string) (DeliveryOutcome, error) {
	n.logger.Info().Str("message", message).Msg("notification")
	return DeliveryOutcome{Status: http.StatusOK, Details: "logged"}, nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
