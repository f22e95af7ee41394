package app

import (
	"fmt"
	"strings"
	"time"

	kit "followbot/internal/transport"
	onebot "followbot/internal/transport/onebot/adapter"
	telegram "followbot/internal/transport/telegram/adapter"
	logx "followbot/pkg/logx"
)

// newAdapter builds the chat transport selected by cfg.Adapter. The adapter is fixed for
// the process lifetime; changing it requires a restart.
func newAdapter(cfg *Config, log logx.Logger) (kit.Adapter, string, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Adapter))
	switch name {
	case "", "telegram":
		pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, "", err
		}
		ad, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, log.With(logx.String("comp", "telegram")))
		return ad, "telegram", err
	case "onebot":
		reconnectMax, err := parseDurationOrDefault("onebot.reconnect_max", cfg.OneBot.ReconnectMax, 30*time.Second)
		if err != nil {
			return nil, "", err
		}
		ad, err := onebot.New(onebot.Config{
			URL:          cfg.OneBot.URL,
			AccessToken:  cfg.OneBot.AccessToken,
			ReconnectMax: reconnectMax,
		}, log.With(logx.String("comp", "onebot")))
		return ad, "onebot", err
	default:
		return nil, "", fmt.Errorf("adapter: unknown value %q", cfg.Adapter)
	}
}

func mapLogConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			ChatID:     cfg.Logging.Chat.ChatID,
			ThreadID:   cfg.Logging.Chat.ThreadID,
			Group:      cfg.Logging.Chat.Group,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}
