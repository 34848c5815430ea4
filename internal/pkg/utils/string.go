package utils

import "strings"

func Truncate(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}

func Truncate80(content string) string {
	return Truncate(content, 80)
}

// MaskSecret keeps a short prefix of a credential for log correlation and
// hides the rest. Tokens must never appear in full in any log line.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 6 {
		return "***"
	}
	return secret[:4] + strings.Repeat("*", 6)
}
