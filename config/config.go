package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds everything the bot reads from the environment.
type Config struct {
	BotToken     string
	ChannelID    int64
	ModeratorIDs []int

	ProxyAPIBase string
	CookiesB64   string
	AudDToken    string

	DBDriver string
	DSN      string

	Debug bool
}

// Load reads configuration from the environment. Required variables are
// TELEGRAM_BOT_API_TOKEN, CHANNEL_ID and MODERATOR_IDS; everything else
// has a default or is optional.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:     os.Getenv("TELEGRAM_BOT_API_TOKEN"),
		ProxyAPIBase: strings.TrimRight(os.Getenv("PROXY_API_BASE"), "/"),
		CookiesB64:   os.Getenv("COOKIES_B64"),
		AudDToken:    os.Getenv("AUDD_API_TOKEN"),
		DBDriver:     os.Getenv("SUGGESTIFY_DB_DRIVER"),
		DSN:          os.Getenv("SUGGESTIFY_DSN"),
		Debug:        os.Getenv("DEBUG") != "",
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = "sqlite3"
	}
	if cfg.DSN == "" {
		cfg.DSN = "submissions.db"
	}

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_API_TOKEN")
	}

	if raw := os.Getenv("CHANNEL_ID"); raw == "" {
		missing = append(missing, "CHANNEL_ID")
	} else {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CHANNEL_ID: %w", err)
		}
		cfg.ChannelID = id
	}

	if raw := os.Getenv("MODERATOR_IDS"); raw == "" {
		missing = append(missing, "MODERATOR_IDS")
	} else {
		ids, err := parseIDList(raw)
		if err != nil {
			return nil, fmt.Errorf("MODERATOR_IDS: %w", err)
		}
		cfg.ModeratorIDs = ids
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func parseIDList(raw string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids in %q", raw)
	}
	return ids, nil
}

// IsModerator reports whether the given Telegram user id may moderate
// submissions.
func (c *Config) IsModerator(userID int) bool {
	for _, id := range c.ModeratorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// WriteCookiesFile decodes the COOKIES_B64 blob into a cookies file that
// external downloaders can read. Returns "" when no blob is configured.
func (c *Config) WriteCookiesFile() (string, error) {
	if c.CookiesB64 == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(c.CookiesB64)
	if err != nil {
		return "", fmt.Errorf("COOKIES_B64: %w", err)
	}
	path := filepath.Join(os.TempDir(), "suggestify-cookies.txt")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
