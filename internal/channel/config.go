package channel

import (
	"fmt"
	"strings"
)

// Config registers one channel instance. It is a discriminated union: the
// Type field selects which per-channel settings section applies, and each
// adapter parses only its own section. Sections are opaque maps so the
// gateway never interprets provider credentials.
type Config struct {
	Type      Type   `json:"type" yaml:"type"`
	AccountID string `json:"accountId" yaml:"account_id"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`

	WhatsApp  map[string]interface{} `json:"whatsapp,omitempty" yaml:"whatsapp,omitempty"`
	Telegram  map[string]interface{} `json:"telegram,omitempty" yaml:"telegram,omitempty"`
	Webchat   map[string]interface{} `json:"webchat,omitempty" yaml:"webchat,omitempty"`
	Facebook  map[string]interface{} `json:"facebook,omitempty" yaml:"facebook,omitempty"`
	Instagram map[string]interface{} `json:"instagram,omitempty" yaml:"instagram,omitempty"`
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
	}
	c.Type = Type(strings.ToLower(strings.TrimSpace(string(c.Type))))
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unsupported channel type %q", ErrInvalidConfig, c.Type)
	}
	c.AccountID = strings.TrimSpace(c.AccountID)
	if c.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidConfig)
	}
	return nil
}

// Settings returns the section matching the configured type. Never nil.
func (c *Config) Settings() map[string]interface{} {
	var s map[string]interface{}
	switch c.Type {
	case WhatsApp:
		s = c.WhatsApp
	case Telegram:
		s = c.Telegram
	case Webchat:
		s = c.Webchat
	case Facebook:
		s = c.Facebook
	case Instagram:
		s = c.Instagram
	}
	if s == nil {
		s = map[string]interface{}{}
	}
	return s
}
