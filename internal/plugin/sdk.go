package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"followbot/internal/eventbus"
	"followbot/internal/storage"
	logx "followbot/pkg/logx"
)

// PluginBase is a small helper to make writing plugins faster and safer.
// Typical usage:
//
//	type Plugin struct { plugin.PluginBase }
//	func (p *Plugin) Init(ctx context.Context, deps plugin.PluginDeps) error { p.InitBase(deps, p.Name()); return nil }
//	func (p *Plugin) Start(ctx context.Context) error { p.StartBase(ctx); return nil }
//	func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }
type PluginBase struct {
	Log        logx.Logger
	Deps       PluginDeps
	Runner     *Supervisor
	pluginName string

	ctx context.Context
}

// Supervisor returns the per-plugin supervisor, if StartBase has been called.
func (b *PluginBase) Supervisor() *Supervisor { return b.Runner }

// InitBase wires deps + logger.
func (b *PluginBase) InitBase(deps PluginDeps, pluginName string) {
	b.Deps = deps
	b.pluginName = pluginName
	log := deps.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	b.Log = log.With(logx.String("plugin", pluginName))
}

// StartBase creates a per-plugin supervisor tied to ctx.
func (b *PluginBase) StartBase(ctx context.Context) {
	b.ctx = ctx
	b.Runner = NewSupervisor(ctx, WithLogger(b.Log), WithCancelOnError(false))
}

// StopBase cancels runner + waits bounded by ctx.
func (b *PluginBase) StopBase(ctx context.Context) error {
	if b.Runner == nil {
		return nil
	}
	b.Runner.Cancel()
	err := b.Runner.Wait(ctx)
	b.Runner = nil
	return err
}

// Context returns the plugin runtime context (canceled on stop/disable).
func (b *PluginBase) Context() context.Context { return b.ctx }

// PluginName returns the name passed to InitBase.
func (b *PluginBase) PluginName() string { return b.pluginName }

// AppendAudit writes an audit entry to the configured storage (if present).
// Plugins should treat this as best-effort; if storage is disabled, storage.ErrDisabled is returned.
func (b *PluginBase) AppendAudit(ctx context.Context, e storage.AuditEntry) error {
	if b == nil {
		return errors.New("plugin is nil")
	}
	st := b.Deps.Store
	if st == nil {
		return storage.ErrDisabled
	}
	if e.Plugin == "" {
		e.Plugin = b.pluginName
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return st.AppendAudit(ctx, e)
}

// PublishEvent publishes a lightweight event to the in-process event bus (if present).
// Publish is non-blocking.
func (b *PluginBase) PublishEvent(typ string, data any) {
	if b == nil || b.Deps.Bus == nil {
		return
	}
	b.Deps.Bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}

// DecodePluginConfig decodes per-plugin raw json into a typed config struct.
// Unknown fields are rejected so typos surface on reload.
func DecodePluginConfig[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
