package repeat

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"followbot/internal/plugin"
	"followbot/internal/storage"
	logx "followbot/pkg/logx"
)

const (
	msgGroupOnly     = "此命令仅在群聊中可用"
	msgRepeatOff     = "已在本群关闭跟读功能"
	msgRepeatOn      = "已在本群开启跟读功能"
	msgBroadcastOff  = "已在本群关闭广播功能"
	msgBroadcastOn   = "已在本群开启广播功能"
	usageRepeat      = "用法: /repeat [on|off]"
	usageBroadcast   = "用法: /broadcast [on|off]"
	helpToggleGroups = "跟读插件命令：\n" +
		"/repeat on - 开启本群跟读\n" +
		"/repeat off - 关闭本群跟读\n" +
		"/broadcast on - 开启本群广播\n" +
		"/broadcast off - 关闭本群广播"
)

// toggleResult is the outcome of one toggle command.
type toggleResult struct {
	reply   string
	changed bool
	enabled bool
}

// applyToggle runs /repeat or /broadcast for group with argument arg.
// group is empty outside group chats.
func applyToggle(store ToggleStore, f Feature, group, arg string, bc BroadcastConfig) toggleResult {
	if group == "" {
		return toggleResult{reply: msgGroupOnly}
	}
	switch arg {
	case "off":
		store.SetEnabled(f, group, false)
		if f == FeatureBroadcast {
			return toggleResult{reply: msgBroadcastOff, changed: true}
		}
		return toggleResult{reply: msgRepeatOff, changed: true}
	case "on":
		store.SetEnabled(f, group, true)
		if f == FeatureBroadcast {
			return toggleResult{reply: msgBroadcastOn, changed: true, enabled: true}
		}
		return toggleResult{reply: msgRepeatOn, changed: true, enabled: true}
	case "":
		if f == FeatureBroadcast {
			return toggleResult{reply: bc.String() + "\n" + usageBroadcast}
		}
		return toggleResult{reply: helpToggleGroups}
	default:
		if f == FeatureBroadcast {
			return toggleResult{reply: usageBroadcast}
		}
		return toggleResult{reply: usageRepeat}
	}
}

type toggleEvent struct {
	ChatID  int64  `json:"chat_id"`
	ActorID int64  `json:"actor_id"`
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

func (p *Plugin) toggleHandler(f Feature) plugin.HandlerFunc {
	return func(ctx context.Context, req *plugin.Request) error {
		group := ""
		if req.Message != nil && req.Message.IsGroup {
			group = groupKey(req.Message)
		}
		arg := strings.TrimSpace(strings.Join(req.Args, " "))

		res := applyToggle(p.toggles, f, group, arg, p.broadcastConfig())
		if res.changed {
			req.Logger.Info("group toggle changed", logx.String("feature", string(f)), logx.Bool("enabled", res.enabled))
			p.recordToggle(ctx, req, f, res.enabled)
		}
		return req.Reply(ctx, res.reply)
	}
}

// recordToggle appends an audit entry and publishes a bus event. Both are best-effort.
func (p *Plugin) recordToggle(ctx context.Context, req *plugin.Request, f Feature, enabled bool) {
	state := "off"
	if enabled {
		state = "on"
	}
	e := storage.AuditEntry{
		ActorID:  req.FromID,
		ChatID:   req.Chat.ChatID,
		ThreadID: req.Chat.ThreadID,
		Action:   string(f) + "." + state,
		Target:   strconv.FormatInt(req.Chat.ChatID, 10),
	}
	if req.Message != nil {
		e.ActorUsername = req.Message.FromUsername
	}
	if err := p.AppendAudit(ctx, e); err != nil && !errors.Is(err, storage.ErrDisabled) {
		req.Logger.Warn("audit append failed", logx.Err(err))
	}
	p.PublishEvent("repeat.toggle", toggleEvent{
		ChatID:  req.Chat.ChatID,
		ActorID: req.FromID,
		Feature: string(f),
		Enabled: enabled,
	})
}
