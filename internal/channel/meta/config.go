package meta

import (
	"fmt"

	"github.com/bytedance/gg/gconv"

	"github.com/omnigate/omnigate/internal/channel"
)

const defaultGraphBase = "https://graph.facebook.com/v19.0"

type Config struct {
	PageID          string // required
	PageAccessToken string // required
	// InstagramAccountID is required for the instagram variant only.
	InstagramAccountID string
	// GraphBase overrides the Graph API endpoint. Tests point it at a local
	// httptest server.
	GraphBase string
}

func (c *Config) Validate(t channel.Type) error {
	if c.PageID == "" {
		return fmt.Errorf("%w: %s page_id is required", channel.ErrInvalidConfig, t)
	}
	if c.PageAccessToken == "" {
		return fmt.Errorf("%w: %s page_access_token is required", channel.ErrInvalidConfig, t)
	}
	if t == channel.Instagram && c.InstagramAccountID == "" {
		return fmt.Errorf("%w: instagram_account_id is required", channel.ErrInvalidConfig)
	}
	if c.GraphBase == "" {
		c.GraphBase = defaultGraphBase
	}
	return nil
}

func ParseConfig(t channel.Type, settings map[string]interface{}) (*Config, error) {
	cfg := &Config{}

	cfg.PageID = firstString(settings, "page_id", "pageId")
	cfg.PageAccessToken = firstString(settings, "page_access_token", "pageAccessToken")
	cfg.InstagramAccountID = firstString(settings, "instagram_account_id", "instagramAccountId")
	cfg.GraphBase = gconv.To[string](settings["graph_base"])

	if err := cfg.Validate(t); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstString(settings map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v := gconv.To[string](settings[k]); v != "" {
			return v
		}
	}
	return ""
}
