// Package whatsapp talks to the WhatsApp Cloud API: outbound text messages,
// assignment notifications and the inbound webhook.
package whatsapp

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
)

const defaultTimeout = 15 * time.Second

var ErrNotConfigured = errors.New("whatsapp: token or phone number id not configured")

// Sender sends a plain text message and returns the provider message id.
type Sender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Client sends messages through the Graph API messages endpoint.
type Client struct {
	Token         string
	PhoneNumberID string
	APIVersion    string
	BaseURL       string
	HTTPClient    *http.Client
}

func NewClient(token, phoneNumberID, apiVersion, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	if apiVersion == "" {
		apiVersion = "v21.0"
	}
	return &Client{
		Token:         token,
		PhoneNumberID: phoneNumberID,
		APIVersion:    apiVersion,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		HTTPClient:    &http.Client{Timeout: defaultTimeout},
	}
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText posts body to the digits-only number to. The token is never logged.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	if c.Token == "" || c.PhoneNumberID == "" {
		return "", ErrNotConfigured
	}
	raw, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/%s/%s/messages", c.BaseURL, c.APIVersion, c.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var out sendResponse
	_ = json.Unmarshal(b, &out)
	if resp.StatusCode != http.StatusOK {
		if out.Error != nil {
			return "", fmt.Errorf("whatsapp: send failed status=%d code=%d: %s", resp.StatusCode, out.Error.Code, out.Error.Message)
		}
		return "", fmt.Errorf("whatsapp: send failed status=%d body=%s", resp.StatusCode, string(b))
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", fmt.Errorf("whatsapp: response without message id")
	}
	return out.Messages[0].ID, nil
}
