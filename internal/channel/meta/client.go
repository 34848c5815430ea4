package meta

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
)

// graphClient issues Graph API calls. No SDK: the surface the gateway needs
// is two endpoints.
type graphClient struct {
	base  string
	token string
	http  *http.Client
}

func newGraphClient(base, token string) *graphClient {
	return &graphClient{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

type profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Me fetches the authenticated page/account profile.
func (c *graphClient) Me(ctx context.Context) (*profile, error) {
	endpoint := fmt.Sprintf("%s/me?fields=id,name&access_token=%s", c.base, url.QueryEscape(c.token))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var p profile
	if err := sonic.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// SendText posts a text message to the recipient.
func (c *graphClient) SendText(ctx context.Context, recipientID, text string) (string, error) {
	return c.send(ctx, map[string]interface{}{
		"recipient": map[string]string{"id": recipientID},
		"message":   map[string]string{"text": text},
	})
}

// SendAttachment posts a URL-referenced attachment to the recipient.
func (c *graphClient) SendAttachment(ctx context.Context, recipientID, attachmentType, mediaURL string) (string, error) {
	return c.send(ctx, map[string]interface{}{
		"recipient": map[string]string{"id": recipientID},
		"message": map[string]interface{}{
			"attachment": map[string]interface{}{
				"type": attachmentType,
				"payload": map[string]interface{}{
					"url":         mediaURL,
					"is_reusable": true,
				},
			},
		},
	})
}

func (c *graphClient) send(ctx context.Context, payload map[string]interface{}) (string, error) {
	raw, err := sonic.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode send payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", c.base, url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	return resp.MessageID, nil
}

func (c *graphClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *graphClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read graph response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var ge graphError
		if err := sonic.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
			return nil, fmt.Errorf("graph error %d (%s): %s", ge.Error.Code, ge.Error.Type, ge.Error.Message)
		}
		return nil, fmt.Errorf("graph HTTP %d", resp.StatusCode)
	}
	return body, nil
}
