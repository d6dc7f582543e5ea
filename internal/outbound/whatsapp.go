// Package outbound holds the platform send clients used by the reply sender.
package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

type WhatsAppClient struct {
	AccessToken   string
	PhoneNumberID string
	HTTP          *http.Client

	BaseURL string
}

type whatsAppSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Send delivers one text message through the WhatsApp Cloud API.
func (c *WhatsAppClient) Send(ctx context.Context, to, text string) (int, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}
	b, _ := json.Marshal(payload)

	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	endpoint := baseURL + "/v18.0/" + c.PhoneNumberID + "/messages"

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var out whatsAppSendResponse
		_ = json.Unmarshal(body, &out)
		if out.Error.Message != "" {
			return resp.StatusCode, errors.New(out.Error.Message)
		}
		return resp.StatusCode, errors.New("whatsapp send failed")
	}
	return resp.StatusCode, nil
}
