// Package repeat echoes text back to group chats when the bot is mentioned
// with "跟我说" (once) or "广播" (repeatedly), with per-group switches.
package repeat

import (
	"context"
	"encoding/json"
	"sync"

	"followbot/internal/plugin"
	kit "followbot/internal/transport"
	logx "followbot/pkg/logx"
)

type Plugin struct {
	plugin.PluginBase

	mu  sync.RWMutex
	cfg BroadcastConfig

	toggles *MemoryToggles
	router  *MessageRouter
	bc      *Broadcaster
}

func New() *Plugin {
	p := &Plugin{
		cfg:     defaultBroadcast(),
		toggles: NewMemoryToggles(),
	}
	p.bc = NewBroadcaster(p.toggles, p.broadcastConfig)
	p.router = NewMessageRouter(p.toggles, NewFollowReader(), p.bc)
	return p
}

func (p *Plugin) Name() string { return "repeat" }

func (p *Plugin) Init(ctx context.Context, deps plugin.PluginDeps) error {
	p.InitBase(deps, p.Name())
	p.router.log = p.Log.With(logx.String("comp", "repeat.router"))
	p.bc.log = p.Log.With(logx.String("comp", "repeat.broadcast"))
	p.bc.started = func(msg *kit.Message, cfg BroadcastConfig) {
		p.PublishEvent("repeat.broadcast", broadcastEvent{
			ChatID:   msg.ChatID,
			FromID:   msg.FromID,
			Count:    cfg.Count,
			Interval: cfg.Interval,
		})
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	runner := p.Runner
	p.bc.setSpawn(func(name string, fn func(ctx context.Context) error) {
		runner.Go(name, fn)
	})
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.bc.setSpawn(nil)
	return p.StopBase(ctx)
}

func (p *Plugin) ValidateConfig(ctx context.Context, raw json.RawMessage) error {
	_, err := parseConfig(raw)
	return err
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	cfg, err := parseConfig(raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	p.Log.Debug("broadcast config applied", logx.Int("count", cfg.Count), logx.Float64("interval", cfg.Interval))
	return nil
}

func (p *Plugin) broadcastConfig() BroadcastConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Route:       "repeat",
			Description: "开启或关闭本群跟读",
			Usage:       "/repeat [on|off]",
			Handle:      p.toggleHandler(FeatureRepeat),
		},
		{
			Route:       "broadcast",
			Description: "开启或关闭本群广播",
			Usage:       "/broadcast [on|off]",
			Handle:      p.toggleHandler(FeatureBroadcast),
		},
	}
}

func (p *Plugin) Listeners() []plugin.Listener {
	return []plugin.Listener{{Name: "repeat.triggers", Handle: p.onMessage}}
}

type broadcastEvent struct {
	ChatID   int64   `json:"chat_id"`
	FromID   int64   `json:"from_id"`
	Count    int     `json:"count"`
	Interval float64 `json:"interval"`
}

// onMessage feeds ordinary messages to the trigger router. Errors are returned
// to the router middleware, which logs them; nothing is sent to the chat.
func (p *Plugin) onMessage(ctx context.Context, req *plugin.Request) error {
	msg := req.Message
	emit := func(ctx context.Context, text string) error {
		_, err := req.Adapter.SendText(ctx, kit.TargetOf(msg), text, nil)
		return err
	}
	out, err := p.router.Route(ctx, msg, emit)
	if err != nil {
		return err
	}
	if out == Handled {
		req.Logger.Debug("trigger handled")
	}
	return nil
}
