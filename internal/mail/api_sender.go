package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBodySize はエラー応答から読み取る本文の上限。
const maxErrorBodySize = 4 << 10

// APIConfig はHTTPメールAPIの接続設定。
type APIConfig struct {
	URL      string
	APIKey   string
	From     string
	FromName string
}

// APISender はJSONのHTTPメールAPI（Brevo互換）でメールを送るSender。
// clientにはSSRF防止付きのクライアントを渡す。
type APISender struct {
	cfg    APIConfig
	client *http.Client
}

// NewAPISender はAPISenderを生成する。
func NewAPISender(cfg APIConfig, client *http.Client) *APISender {
	return &APISender{cfg: cfg, client: client}
}

type apiAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type apiRequest struct {
	Sender      apiAddress   `json:"sender"`
	To          []apiAddress `json:"to"`
	Subject     string       `json:"subject"`
	HTMLContent string       `json:"htmlContent"`
}

// Send はメールAPIへ1通分のリクエストを送る。2xx以外はErrDeliveryをラップして返す。
func (s *APISender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(apiRequest{
		Sender:      apiAddress{Name: s.cfg.FromName, Email: s.cfg.From},
		To:          []apiAddress{{Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return fmt.Errorf("%w: status %d: %s", ErrDelivery, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

var _ Sender = (*APISender)(nil)
