package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TelegramNotifier 通过 Telegram Bot API 推送消息。同一天内同 ID 的提醒会编辑已发送的消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger

	mu   sync.Mutex
	sent map[uint32]sentMessage
}

type sentMessage struct {
	day       string
	messageID int64
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
		sent:     make(map[uint32]sentMessage),
	}
}

var errNotModified = errors.New("telegram: message is not modified")

type telegramResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Notify 调用 sendMessage 或 editMessageText 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	n.mu.Lock()
	prev, replace := n.sent[note.ID]
	n.mu.Unlock()
	replace = replace && prev.day == note.Day

	payload := map[string]any{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}
	method := "sendMessage"
	if replace {
		method = "editMessageText"
		payload["message_id"] = prev.messageID
	}

	result, err := n.call(ctx, method, payload)
	if replace && errors.Is(err, errNotModified) {
		// 内容未变化, 已显示的消息即为最新
		err = nil
	}
	if err != nil {
		return err
	}

	n.mu.Lock()
	if !replace {
		n.sent[note.ID] = sentMessage{day: note.Day, messageID: result.Result.MessageID}
	}
	n.mu.Unlock()

	n.logger.Info().
		Str("prayer", string(note.Prayer)).
		Uint32("id", note.ID).
		Bool("replaced", replace).
		Msg("提醒已发送 (Telegram)")
	return nil
}

func (n *TelegramNotifier) call(ctx context.Context, method string, payload map[string]any) (telegramResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return telegramResult{}, fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return telegramResult{}, fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return telegramResult{}, fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	// 错误响应同样带 JSON 描述, 先解析再判断状态码
	var result telegramResult
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (decodeErr == nil && !result.OK) {
		if strings.Contains(result.Description, "message is not modified") {
			return result, errNotModified
		}
		if result.Description != "" {
			return result, fmt.Errorf("telegram 请求失败 (%d): %s", resp.StatusCode, result.Description)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return result, errors.New("telegram 返回 ok=false")
		}
		return result, fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}
	return result, nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(note.Title)
	builder.WriteString("\n")
	builder.WriteString(note.Body)
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("%s %s", note.Prayer, note.At.Format("15:04 (MST) 2006-01-02")))
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
