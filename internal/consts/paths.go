package consts

import (
	"os"
	"path/filepath"
)

const (
	OmnigateDirName    = ".omnigate"
	ConfigFileName     = "config.yaml"
	SessionsDirName    = "sessions"
	DefaultGatewayBind = "0.0.0.0:8080"
)

func OmnigateHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, OmnigateDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(OmnigateHomeDir(), ConfigFileName)
}

// DefaultSessionRoot is where per-account WhatsApp session databases live.
// Each account gets its own subdirectory so sessions survive restarts
// independently of one another.
func DefaultSessionRoot() string {
	return filepath.Join(OmnigateHomeDir(), SessionsDirName)
}
