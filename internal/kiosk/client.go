package kiosk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const kioskKeyHeader = "X-Kiosk-Key"

// APIError: サーバの {"ok":false,"error":{...}} をそのまま持つ
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

type TapResult struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Duplicate bool   `json:"duplicate"`
	Member    struct {
		ID          int64  `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"member"`
}

type Registration struct {
	OK        bool      `json:"ok"`
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RegistrationStatus struct {
	Used      bool      `json:"used"`
	Expired   bool      `json:"expired"`
	Accessed  bool      `json:"accessed"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Announcement struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Client: キオスク API（/api/v2/kiosk/*）の呼び出し口
type Client struct {
	base string
	key  string
	http *http.Client
}

// NewClient: baseURL は "https://host:8443/api/v2" のように API ルートまで
func NewClient(baseURL, key string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		key:  key,
		http: &http.Client{Timeout: timeout},
	}
}

// BaseURL: Subscriber が ws:// URL を組み立てるのに使う
func (c *Client) BaseURL() string { return c.base }
func (c *Client) Key() string     { return c.key }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set(kioskKeyHeader, c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode >= 300 {
		var env struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Error != nil {
			env.Error.Status = res.StatusCode
			return env.Error
		}
		return &APIError{Status: res.StatusCode, Code: "HTTP_ERROR", Message: http.StatusText(res.StatusCode)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Tap: POST /kiosk/taps
func (c *Client) Tap(ctx context.Context, cardID string) (TapResult, error) {
	var out TapResult
	err := c.do(ctx, http.MethodPost, "/kiosk/taps", map[string]string{"card_id": cardID}, &out)
	return out, err
}

// BeginRegistration: POST /kiosk/registrations
func (c *Client) BeginRegistration(ctx context.Context, cardID string) (Registration, error) {
	var out Registration
	err := c.do(ctx, http.MethodPost, "/kiosk/registrations", map[string]string{"card_id": cardID}, &out)
	return out, err
}

// RegistrationStatus: 通知が切れている間のポーリング用
func (c *Client) RegistrationStatus(ctx context.Context, token string) (RegistrationStatus, error) {
	var out RegistrationStatus
	err := c.do(ctx, http.MethodGet, "/kiosk/registrations/"+url.PathEscape(token)+"/status", nil, &out)
	return out, err
}

// CurrentAnnouncement: 表示中がなければ nil
func (c *Client) CurrentAnnouncement(ctx context.Context) (*Announcement, error) {
	var out struct {
		Announcement *Announcement `json:"announcement"`
	}
	if err := c.do(ctx, http.MethodGet, "/kiosk/announcement", nil, &out); err != nil {
		return nil, err
	}
	return out.Announcement, nil
}

// UserMessage: 画面に出す文言。サーバの message を優先し、通信断は固定文言
func UserMessage(err error) string {
	var api *APIError
	if errors.As(err, &api) && api.Message != "" {
		return api.Message
	}
	return "サーバーに接続できません。しばらくしてからもう一度お試しください"
}
