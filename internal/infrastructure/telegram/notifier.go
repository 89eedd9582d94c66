package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"TenderRadar/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier sends matched notices to Telegram chats via the bot API.
type Notifier struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Messenger = (*Notifier)(nil)

// NewNotifier registers bot token and the fallback chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		apiBase:  defaultAPIBase,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Send posts the message summary. The recipient is a chat id; an empty one
// falls back to the configured chat.
func (n *Notifier) Send(ctx context.Context, msg ports.Message) ports.SendResult {
	chatID := msg.Recipient
	if chatID == "" {
		chatID = n.chatID
	}
	if n.botToken == "" || chatID == "" {
		return ports.SendResult{OK: false, Message: "telegram notifier misconfigured"}
	}
	if err := n.sendMessage(ctx, chatID, msg.Summary); err != nil {
		return ports.SendResult{OK: false, Message: err.Error()}
	}
	return ports.SendResult{OK: true}
}

// maxMessageRunes is the Bot API limit for one text message.
const maxMessageRunes = 4096

func (n *Notifier) sendMessage(ctx context.Context, chatID, text string) error {
	if utf8.RuneCountInString(text) > maxMessageRunes {
		text = string([]rune(text)[:maxMessageRunes-1]) + "…"
	}
	form := url.Values{
		"chat_id":                  {chatID},
		"text":                     {text},
		"disable_web_page_preview": {"true"},
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send to chat %s: %w", chatID, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	reply := gjson.ParseBytes(body)
	if resp.StatusCode != http.StatusOK || (reply.Get("ok").Exists() && !reply.Get("ok").Bool()) {
		if desc := reply.Get("description").String(); desc != "" {
			return fmt.Errorf("telegram %s: %s", resp.Status, desc)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}
