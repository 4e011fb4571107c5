// Package telegram holds the thin Bot API surface the handshake needs:
// building the deep link that carries the login token into the chat,
// and acking the user once their login is approved.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// DeepLink builds the t.me start link that hands the login token to the
// bot. This is the only path by which a token reaches the confirmation.
func DeepLink(botUsername, token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, url.QueryEscape(token))
}

type Client struct {
	botToken string
	apiBase  string
	http     *http.Client
}

func NewClient(botToken string) *Client {
	return &Client{
		botToken: botToken,
		apiBase:  defaultAPIBase,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// WithAPIBase points the client at a different Bot API host. Used by tests.
func (c *Client) WithAPIBase(base string) *Client {
	c.apiBase = base
	return c
}

// LoginApproved sends the post-confirmation ack into the chat.
func (c *Client) LoginApproved(ctx context.Context, chatID int64, firstName string) error {
	greeting := "You are signed in"
	if firstName != "" {
		greeting = fmt.Sprintf("%s, you are signed in", firstName)
	}
	text := fmt.Sprintf("✅ <b>Login approved.</b>\n\n%s. You can return to the browser tab.", greeting)
	return c.sendMessage(ctx, chatID, text)
}

func (c *Client) sendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram api returned status %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram api error: %s", result.Description)
	}
	return nil
}
