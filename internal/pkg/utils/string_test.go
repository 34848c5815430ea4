package utils

import "testing"

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("short content must pass through, got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret(""); got != "" {
		t.Errorf("empty secret: %q", got)
	}
	if got := MaskSecret("abc"); got != "***" {
		t.Errorf("short secret must be fully masked: %q", got)
	}
	got := MaskSecret("EAABsbCS1234567890")
	if got != "EAAB******" {
		t.Errorf("got %q", got)
	}
}
