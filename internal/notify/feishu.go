// Package notify delivers the daily digest to Feishu, preferring the custom
// bot webhook and falling back to the app bot message API.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/avdigest/internal/canonical"
	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/globaltime"
)

const (
	tenantTokenEndpoint = "https://open.feishu.cn/open-apis/auth/v3/tenant_access_token/internal"
	messagesEndpoint    = "https://open.feishu.cn/open-apis/im/v1/messages?receive_id_type=open_id"

	messageTopItems = 8
)

// Delivery status values recorded in the run report.
const (
	StatusSentWebhook = "sent_webhook"
	StatusSent        = "sent"
	StatusSkipped     = "skipped"
	StatusFailed      = "notify_failed"
)

type Config struct {
	WebhookURL    string
	WebhookSecret string
	AppID         string
	AppSecret     string
	ReceiveOpenID string
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

func NewClient(cfg Config, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Send delivers text to the configured target. The returned status is one of
// the delivery status values; err is non-nil only when delivery was
// attempted and failed.
func (c *Client) Send(ctx context.Context, text, messageUUID string) (string, error) {
	if c.cfg.WebhookURL != "" {
		if err := c.sendWebhook(ctx, text, messageUUID); err != nil {
			return StatusFailed, err
		}
		return StatusSentWebhook, nil
	}

	if c.cfg.AppID == "" || c.cfg.AppSecret == "" || c.cfg.ReceiveOpenID == "" {
		c.logger.Info().Msg("notify skipped: no webhook or app bot configured")
		return StatusSkipped, nil
	}

	token, err := c.fetchTenantToken(ctx)
	if err != nil {
		return StatusFailed, err
	}
	if err := c.sendAppMessage(ctx, token, text, messageUUID); err != nil {
		return StatusFailed, err
	}
	return StatusSent, nil
}

// Sign computes the Feishu custom bot signature:
// base64(hmac_sha256(secret, "{timestamp}\n{secret}")).
func Sign(secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// BuildMessage formats the digest text: the top briefs with links plus the
// published page URL.
func BuildMessage(date, htmlURL string, briefs []digest.Brief) string {
	top := briefs
	if len(top) > messageTopItems {
		top = top[:messageTopItems]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "自动驾驶行业简报 %s\n\n", date)
	for i, brief := range top {
		fmt.Fprintf(&b, "%d. %s\n%s\n", i+1, strings.TrimSpace(brief.TitleZH), brief.URL)
	}
	if htmlURL != "" {
		fmt.Fprintf(&b, "\n完整网页：%s", htmlURL)
	}
	return b.String()
}

// MessageUUID derives a stable idempotency key so retried runs of the same
// day do not double-deliver.
func MessageUUID(date, htmlURL, text string) string {
	return canonical.SHA1Hex(date + "|" + text + "|" + htmlURL)
}

func (c *Client) sendWebhook(ctx context.Context, text, messageUUID string) error {
	payload := map[string]any{
		"msg_type": "text",
		"content":  map[string]string{"text": text},
	}
	if messageUUID != "" {
		payload["uuid"] = messageUUID
	}
	if c.cfg.WebhookSecret != "" {
		ts := strconv.FormatInt(globaltime.Now().Unix(), 10)
		payload["timestamp"] = ts
		payload["sign"] = Sign(c.cfg.WebhookSecret, ts)
	}

	resp, err := c.postJSON(ctx, c.cfg.WebhookURL, "", payload)
	if err != nil {
		return err
	}
	if code := feishuCode(resp); code != 0 {
		return fmt.Errorf("webhook delivery failed: code=%d msg=%s", code, feishuMsg(resp))
	}
	return nil
}

func (c *Client) fetchTenantToken(ctx context.Context) (string, error) {
	resp, err := c.postJSON(ctx, tenantTokenEndpoint, "", map[string]any{
		"app_id":     c.cfg.AppID,
		"app_secret": c.cfg.AppSecret,
	})
	if err != nil {
		return "", err
	}
	if code := feishuCode(resp); code != 0 {
		return "", fmt.Errorf("tenant token failed: code=%d msg=%s", code, feishuMsg(resp))
	}
	token, _ := resp["tenant_access_token"].(string)
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("empty tenant_access_token")
	}
	return token, nil
}

func (c *Client) sendAppMessage(ctx context.Context, token, text, messageUUID string) error {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	payload := map[string]any{
		"receive_id": c.cfg.ReceiveOpenID,
		"msg_type":   "text",
		"content":    string(content),
	}
	if messageUUID != "" {
		payload["uuid"] = messageUUID
	}

	resp, err := c.postJSON(ctx, messagesEndpoint, token, payload)
	if err != nil {
		return err
	}
	if code := feishuCode(resp); code != 0 {
		return fmt.Errorf("send message failed: code=%d msg=%s", code, feishuMsg(resp))
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, endpoint, token string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// feishuCode reads the response code from either the app API ("code") or
// the custom bot ("StatusCode") shape.
func feishuCode(resp map[string]any) int {
	for _, key := range []string{"code", "StatusCode"} {
		if raw, ok := resp[key]; ok {
			switch v := raw.(type) {
			case float64:
				return int(v)
			case string:
				if n, err := strconv.Atoi(v); err == nil {
					return n
				}
				return -1
			}
		}
	}
	return -1
}

func feishuMsg(resp map[string]any) string {
	for _, key := range []string{"msg", "StatusMessage"} {
		if v, ok := resp[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
