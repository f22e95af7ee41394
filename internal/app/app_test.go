package app

import (
	"testing"
	"time"

	"followbot/internal/config"
	onebot "followbot/internal/transport/onebot/adapter"
	logx "followbot/pkg/logx"
)

func TestMapStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		sc      *config.StorageConfig
		enabled bool
		driver  string
		keep    time.Duration
		wantErr bool
	}{
		{name: "nil", sc: nil},
		{name: "none", sc: &config.StorageConfig{Driver: "none"}},
		{name: "file", sc: &config.StorageConfig{Driver: "file", Path: "audit.jsonl"}, enabled: true, driver: "file"},
		{name: "sqlite", sc: &config.StorageConfig{Driver: "SQLite", Path: "x.db", Retention: "720h"}, enabled: true, driver: "sqlite", keep: 720 * time.Hour},
		{name: "sqlite no path", sc: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "bad retention", sc: &config.StorageConfig{Driver: "file", Retention: "soon"}, wantErr: true},
		{name: "unknown", sc: &config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, enabled, err := mapStorageConfig(&Config{Storage: tc.sc})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if enabled != tc.enabled || got.Store.Driver != tc.driver || got.Retention != tc.keep {
				t.Fatalf("got %+v enabled=%v", got, enabled)
			}
		})
	}
}

func TestNewAdapterSelection(t *testing.T) {
	ad, name, err := newAdapter(&Config{Adapter: "OneBot", OneBot: config.OneBotConfig{URL: "ws://127.0.0.1:3001"}}, logx.Nop())
	if err != nil || name != "onebot" {
		t.Fatalf("onebot: name=%q err=%v", name, err)
	}
	if _, ok := ad.(*onebot.Adapter); !ok {
		t.Fatalf("onebot: got %T", ad)
	}

	if _, _, err := newAdapter(&Config{Adapter: "irc"}, logx.Nop()); err == nil {
		t.Fatalf("unknown adapter accepted")
	}
	// Telegram validates the token before any network call.
	if _, _, err := newAdapter(&Config{}, logx.Nop()); err == nil {
		t.Fatalf("empty telegram token accepted")
	}
}

func TestDrainLatest(t *testing.T) {
	sub := make(chan *Config, 4)
	a, b := &Config{Adapter: "a"}, &Config{Adapter: "b"}
	sub <- a
	sub <- nil
	sub <- b
	if got := drainLatest(sub, &Config{}); got != b {
		t.Fatalf("drainLatest = %+v, want newest", got)
	}
	if len(sub) != 0 {
		t.Fatalf("channel not drained")
	}
}

func TestMapLogConfig(t *testing.T) {
	cfg := &Config{Logging: config.LoggingConfig{
		Level: "debug",
		Chat:  config.LoggingChat{Enabled: true, ChatID: 42, Group: true, MinLevel: "error", RatePerSec: 2},
	}}
	got := mapLogConfig(cfg)
	if got.Level != "debug" || !got.Chat.Enabled || got.Chat.ChatID != 42 || !got.Chat.Group || got.Chat.RatePerSec != 2 {
		t.Fatalf("mapLogConfig = %+v", got)
	}
}
