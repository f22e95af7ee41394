package config

import (
	"bytes"
	"encoding/json"
)

// Adapter names accepted in Config.Adapter.
const (
	AdapterTelegram = "telegram"
	AdapterOneBot   = "onebot"
)

type Config struct {
	// Adapter selects the chat transport: "telegram" (default) or "onebot".
	Adapter  string         `json:"adapter,omitempty"`
	Telegram TelegramConfig `json:"telegram"`
	OneBot   OneBotConfig   `json:"onebot"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`

	Plugins map[string]PluginConfigRaw `json:"plugins"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

// OneBotConfig configures the OneBot v11 forward WebSocket client.
//
// Example:
//
//	"onebot": { "url": "ws://127.0.0.1:3001", "access_token": "..." }
type OneBotConfig struct {
	URL         string `json:"url"`
	AccessToken string `json:"access_token,omitempty"` // do not log
	// ReconnectMax caps the reconnect backoff (Go duration string, default "30s").
	ReconnectMax string `json:"reconnect_max,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards WARN+ log lines to a chat through the active adapter.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	Group      bool   `json:"group,omitempty"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the optional audit store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/followbot.db", "retention": "720h" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Retention drops audit entries older than this (Go duration string). Empty keeps everything.
	Retention string `json:"retention,omitempty"`
	// PruneSchedule is a cron spec for retention pruning (default "@daily").
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

type PluginConfigRaw struct {
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON disallows unknown fields so typos in plugin blocks are caught on reload.
func (p *PluginConfigRaw) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled bool            `json:"enabled"`
		Config  json.RawMessage `json:"config,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*p = PluginConfigRaw{Enabled: t.Enabled, Config: t.Config}
	return nil
}
