package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig drives the terminal client.
type ClientConfig struct {
	ServerURL     string
	TokenFile     string
	HistoryFile   string
	AutoSaveDelay time.Duration
}

func LoadClient() ClientConfig {
	_ = godotenv.Load()

	dir := ""
	if base, err := os.UserConfigDir(); err == nil {
		dir = filepath.Join(base, "notegeek")
	}
	return ClientConfig{
		ServerURL:     getenv("NOTEGEEK_URL", "http://localhost:5000"),
		TokenFile:     getenv("NOTEGEEK_TOKEN_FILE", joinIf(dir, "token")),
		HistoryFile:   getenv("NOTEGEEK_HISTORY_FILE", joinIf(dir, "history")),
		AutoSaveDelay: time.Duration(getenvInt("NOTEGEEK_AUTOSAVE_MS", 1500)) * time.Millisecond,
	}
}

func joinIf(dir, name string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, name)
}
