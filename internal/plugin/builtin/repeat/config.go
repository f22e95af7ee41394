package repeat

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"followbot/internal/plugin"
)

const (
	DefaultBroadcastCount    = 5
	DefaultBroadcastInterval = 2.0
)

// maxInterval is an exclusive bound in seconds; float64(MaxInt64) rounds up to 2^63.
const maxInterval = float64(math.MaxInt64) / float64(time.Second)

// BroadcastConfig is the effective broadcast setting.
type BroadcastConfig struct {
	Count    int
	Interval float64 // seconds
}

func (c BroadcastConfig) Wait() time.Duration {
	return time.Duration(c.Interval * float64(time.Second))
}

// String renders the status line shown by /broadcast.
func (c BroadcastConfig) String() string {
	return fmt.Sprintf("当前广播配置：次数 %d，间隔 %s 秒", c.Count, strconv.FormatFloat(c.Interval, 'f', -1, 64))
}

// Config mirrors plugins.repeat.config:
//
//	{"broadcast": {"count": 5, "interval": 2.0}}
type Config struct {
	Broadcast *struct {
		Count    *int     `json:"count"`
		Interval *float64 `json:"interval"`
	} `json:"broadcast"`
}

func defaultBroadcast() BroadcastConfig {
	return BroadcastConfig{Count: DefaultBroadcastCount, Interval: DefaultBroadcastInterval}
}

// parseConfig decodes raw and fills defaults. A zero or missing count means the default.
func parseConfig(raw json.RawMessage) (BroadcastConfig, error) {
	cfg, err := plugin.DecodePluginConfig[Config](raw)
	if err != nil {
		return BroadcastConfig{}, err
	}
	out := defaultBroadcast()
	if cfg.Broadcast == nil {
		return out, nil
	}
	if c := cfg.Broadcast.Count; c != nil {
		if *c < 0 {
			return BroadcastConfig{}, fmt.Errorf("broadcast.count must be >= 0, got %d", *c)
		}
		if *c > 0 {
			out.Count = *c
		}
	}
	if iv := cfg.Broadcast.Interval; iv != nil {
		if err := checkInterval(*iv); err != nil {
			return BroadcastConfig{}, err
		}
		out.Interval = *iv
	}
	return out, nil
}

func checkInterval(iv float64) error {
	if math.IsNaN(iv) || iv < 0 || iv >= maxInterval {
		return fmt.Errorf("broadcast.interval must be >= 0 and below %.0f, got %v", maxInterval, iv)
	}
	return nil
}
