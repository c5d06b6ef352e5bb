// Package telegram implements the chat transport against the Telegram
// Bot API over plain HTTPS, without a framework dependency.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/inky-tools/inkybot/internal/bot"
	botderr "github.com/inky-tools/inkybot/internal/errors"
)

const apiBase = "https://api.telegram.org"

type Client struct {
	http *resty.Client
	log  *zap.Logger
}

func NewClient(token string, log *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(fmt.Sprintf("%s/bot%s", apiBase, token)).
		// Long polls run up to 50s server-side; leave headroom.
		SetTimeout(65 * time.Second)
	return &Client{http: http, log: log}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Update is one inbound event from getUpdates.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type Message struct {
	MessageID int    `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type User struct {
	ID int64 `json:"id"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

func (c *Client) call(ctx context.Context, method string, body map[string]interface{}, result interface{}) error {
	var wrapper apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&wrapper).
		SetError(&wrapper).
		Post("/" + method)
	if err != nil {
		return botderr.Wrap(botderr.KindRPC, "telegram "+method, err)
	}
	if resp.IsError() || !wrapper.OK {
		return botderr.New(botderr.KindRPC, fmt.Sprintf("telegram %s: %s", method, wrapper.Description))
	}
	if result != nil {
		if err := json.Unmarshal(wrapper.Result, result); err != nil {
			return botderr.Wrap(botderr.KindRPC, "decode telegram "+method+" result", err)
		}
	}
	return nil
}

// GetUpdates long-polls for new updates past offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]interface{}{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) Send(ctx context.Context, chatID int64, r bot.Reply) error {
	body := map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     r.Text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	if markup := replyMarkup(r); markup != nil {
		body["reply_markup"] = markup
	}
	return c.call(ctx, "sendMessage", body, nil)
}

func (c *Client) Edit(ctx context.Context, chatID int64, messageID int, r bot.Reply) error {
	body := map[string]interface{}{
		"chat_id":                  chatID,
		"message_id":               messageID,
		"text":                     r.Text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	// Only inline keyboards can ride on an edit.
	if len(r.Keyboard) > 0 {
		body["reply_markup"] = inlineKeyboard(r.Keyboard)
	}
	return c.call(ctx, "editMessageText", body, nil)
}

func (c *Client) AckCallback(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]interface{}{"callback_query_id": callbackID}, nil)
}

func replyMarkup(r bot.Reply) map[string]interface{} {
	if len(r.Keyboard) > 0 {
		return inlineKeyboard(r.Keyboard)
	}
	if r.ForceReply {
		return map[string]interface{}{"force_reply": true, "selective": true}
	}
	return nil
}

func inlineKeyboard(rows [][]bot.Button) map[string]interface{} {
	keyboard := make([][]map[string]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]map[string]string, 0, len(row))
		for _, b := range row {
			cells = append(cells, map[string]string{"text": b.Label, "callback_data": b.Data})
		}
		keyboard = append(keyboard, cells)
	}
	return map[string]interface{}{"inline_keyboard": keyboard}
}
