package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/omnigate/omnigate/internal/channel"
)

func TestValidate_Defaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Gateway.RequestTimeout != 30 {
		t.Fatalf("request timeout default: %d", cfg.Gateway.RequestTimeout)
	}
	if cfg.Webhook.TimeoutSec != 10 || cfg.Webhook.QueueSize != 256 {
		t.Fatalf("webhook defaults: %+v", cfg.Webhook)
	}
}

func TestValidate_ChannelKeyInheritance(t *testing.T) {
	cfg := &Config{
		Channels: map[string]channel.Config{
			"my-bot": {Type: channel.Telegram},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Channels["my-bot"].AccountID != "my-bot" {
		t.Fatal("account id must inherit the map key")
	}
}

func TestValidate_SameAccountUnderTwoTypes(t *testing.T) {
	cfg := &Config{
		Channels: map[string]channel.Config{
			"whatsapp:acc1": {Type: channel.WhatsApp, AccountID: "acc1"},
			"telegram:acc1": {Type: channel.Telegram, AccountID: "acc1"},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Channels["whatsapp:acc1"].AccountID != "acc1" || cfg.Channels["telegram:acc1"].AccountID != "acc1" {
		t.Fatalf("composite keys must keep their own account ids: %+v", cfg.Channels)
	}
}

func TestValidate_BadChannelType(t *testing.T) {
	cfg := &Config{
		Channels: map[string]channel.Config{
			"x": {Type: "carrier-pigeon"},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown channel type must fail validation")
	}
}

func TestClone_Independence(t *testing.T) {
	cfg := &Config{
		Gateway: GatewayConfig{Bind: "127.0.0.1:9999"},
		Channels: map[string]channel.Config{
			"a": {Type: channel.Webchat, AccountID: "a"},
		},
	}
	clone, err := cfg.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if clone.Gateway.Bind != cfg.Gateway.Bind {
		t.Fatalf("clone drifted: %+v", clone.Gateway)
	}

	clone.Gateway.Bind = "0.0.0.0:1"
	clone.Channels["b"] = channel.Config{Type: channel.Telegram, AccountID: "b"}
	if cfg.Gateway.Bind != "127.0.0.1:9999" || len(cfg.Channels) != 1 {
		t.Fatal("mutating the clone leaked into the original")
	}
}

func TestInstanceManager_LoadApplySave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	seed := `gateway:
  bind: "0.0.0.0:8080"
channels:
  my-bot:
    type: telegram
    enabled: true
    telegram:
      bot_token: "t"
`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	ins := &InstanceManager{}
	cfg, err := ins.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channels["my-bot"].Type != channel.Telegram {
		t.Fatalf("channel not parsed: %+v", cfg.Channels)
	}

	next := map[string]channel.Config{
		"site": {Type: channel.Webchat, AccountID: "site", Enabled: true},
	}
	if err := ins.Apply("channels", &next); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := ins.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := &InstanceManager{}
	cfg, err = reloaded.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := cfg.Channels["site"]; !ok {
		t.Fatal("applied channel did not round-trip through the file")
	}
	if _, ok := cfg.Channels["my-bot"]; ok {
		t.Fatal("replaced channel map must not retain the old entry")
	}
}

func TestInstanceManager_ApplyBadValueLeavesConfigIntact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("gateway:\n  bind: \"0.0.0.0:8080\"\n"), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	ins := &InstanceManager{}
	if _, err := ins.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	bad := map[string]channel.Config{
		"x": {Type: "carrier-pigeon"},
	}
	if err := ins.Apply("channels", &bad); err == nil {
		t.Fatal("invalid draft must be rejected")
	}

	cfg, err := ins.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(cfg.Channels) != 0 {
		t.Fatalf("rejected apply must not leave a partial update: %+v", cfg.Channels)
	}
}

func TestInstanceManager_SaveKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	seed := "gateway:\n  bind: \"0.0.0.0:8080\"\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	ins := &InstanceManager{}
	if _, err := ins.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := ins.Apply("gateway", &GatewayConfig{Bind: ":1"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := ins.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	backup, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(backup) != seed {
		t.Fatalf("backup must hold the previous file, got %q", backup)
	}
}

func TestGet_BeforeLoad(t *testing.T) {
	ins := &InstanceManager{}
	if _, err := ins.Get(); err == nil {
		t.Fatal("get before load must fail")
	}
}
