package repeat

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	kit "followbot/internal/transport"
	logx "followbot/pkg/logx"
)

// Outcome tells the caller whether a message was consumed by a trigger handler.
type Outcome int

const (
	Ignored Outcome = iota
	Handled
)

func (o Outcome) String() string {
	if o == Handled {
		return "handled"
	}
	return "ignored"
}

// Handler serves one trigger phrase.
type Handler interface {
	Handle(ctx context.Context, msg *kit.Message, emit Emit) error
}

type route struct {
	phrase  string
	handler Handler
}

// MessageRouter filters inbound group messages and hands them to the first
// trigger whose phrase appears in the text.
type MessageRouter struct {
	toggles ToggleStore
	routes  []route
	log     logx.Logger
}

func NewMessageRouter(toggles ToggleStore, follow *FollowReader, bc *Broadcaster) *MessageRouter {
	return &MessageRouter{
		toggles: toggles,
		routes: []route{
			{phrase: PhraseFollow, handler: follow},
			{phrase: PhraseBroadcast, handler: bc},
		},
		log: logx.Nop(),
	}
}

// Route runs the guards in order and dispatches at most one handler.
// Panics inside handlers come back as errors.
func (r *MessageRouter) Route(ctx context.Context, msg *kit.Message, emit Emit) (out Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in trigger handler", logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
			out, err = Ignored, fmt.Errorf("trigger handler panic: %v", rec)
		}
	}()

	if msg == nil || (strings.TrimSpace(msg.Text) == "" && len(msg.Mentions) == 0) {
		return Ignored, nil
	}
	if !msg.IsGroup {
		return Ignored, nil
	}
	// The repeat switch gates every trigger, broadcast included.
	if !r.toggles.Enabled(FeatureRepeat, groupKey(msg)) {
		return Ignored, nil
	}
	if !MentionsSelf(msg.Mentions, msg.SelfID) {
		return Ignored, nil
	}

	text := strings.TrimSpace(msg.Text)
	for _, rt := range r.routes {
		if !strings.Contains(text, rt.phrase) {
			continue
		}
		if err := rt.handler.Handle(ctx, msg, emit); err != nil {
			return Handled, fmt.Errorf("%s: %w", rt.phrase, err)
		}
		return Handled, nil
	}
	return Ignored, nil
}

func groupKey(msg *kit.Message) string {
	return strconv.FormatInt(msg.ChatID, 10)
}
