package repeat

import (
	"context"
	"errors"
	"testing"
	"time"

	kit "followbot/internal/transport"
)

const selfID = "10001"

type recorder struct {
	sent  []string
	waits []time.Duration
	fail  error
}

func (r *recorder) emit(ctx context.Context, text string) error {
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, text)
	return nil
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

type fixture struct {
	toggles *MemoryToggles
	cfg     BroadcastConfig
	router  *MessageRouter
	rec     *recorder
}

func newFixture() *fixture {
	f := &fixture{toggles: NewMemoryToggles(), cfg: defaultBroadcast(), rec: &recorder{}}
	bc := NewBroadcaster(f.toggles, func() BroadcastConfig { return f.cfg })
	bc.sleep = f.rec.sleep
	f.router = NewMessageRouter(f.toggles, NewFollowReader(), bc)
	return f
}

func (f *fixture) route(t *testing.T, msg *kit.Message) Outcome {
	t.Helper()
	out, err := f.router.Route(context.Background(), msg, f.rec.emit)
	if err != nil {
		t.Fatalf("Route() err = %v", err)
	}
	return out
}

func mentioned(text string) *kit.Message {
	return &kit.Message{
		ChatID:   -100123,
		FromID:   7,
		Text:     text,
		IsGroup:  true,
		SelfID:   selfID,
		Mentions: []kit.Mention{{QQ: int64(10001)}},
	}
}

func TestFollowEchoesPayloadOnce(t *testing.T) {
	f := newFixture()
	if out := f.route(t, mentioned("跟我说   hello")); out != Handled {
		t.Fatalf("outcome = %v", out)
	}
	if len(f.rec.sent) != 1 || f.rec.sent[0] != "hello" {
		t.Fatalf("sent = %q", f.rec.sent)
	}
	if len(f.rec.waits) != 0 {
		t.Fatalf("follow must not wait, waits = %v", f.rec.waits)
	}
}

func TestFollowEmptyPayloadIsSilent(t *testing.T) {
	f := newFixture()
	f.route(t, mentioned("跟我说   "))
	if len(f.rec.sent) != 0 {
		t.Fatalf("sent = %q", f.rec.sent)
	}
}

func TestBroadcastDefaultCountAndInterval(t *testing.T) {
	f := newFixture()
	if out := f.route(t, mentioned("广播 开会")); out != Handled {
		t.Fatalf("outcome = %v", out)
	}
	if len(f.rec.sent) != 5 {
		t.Fatalf("sent %d messages, want 5", len(f.rec.sent))
	}
	for _, s := range f.rec.sent {
		if s != "开会" {
			t.Fatalf("sent = %q", f.rec.sent)
		}
	}
	// Four gaps, none after the last emission.
	if len(f.rec.waits) != 4 {
		t.Fatalf("waits = %v, want 4", f.rec.waits)
	}
	for _, w := range f.rec.waits {
		if w != 2*time.Second {
			t.Fatalf("wait = %v, want 2s", w)
		}
	}
}

func TestBroadcastReadsConfigAtCallTime(t *testing.T) {
	f := newFixture()
	f.cfg = BroadcastConfig{Count: 2, Interval: 0.25}
	f.route(t, mentioned("广播 x"))
	if len(f.rec.sent) != 2 || len(f.rec.waits) != 1 || f.rec.waits[0] != 250*time.Millisecond {
		t.Fatalf("sent = %q waits = %v", f.rec.sent, f.rec.waits)
	}

	f.cfg = BroadcastConfig{Count: 1, Interval: 3}
	f.rec.sent, f.rec.waits = nil, nil
	f.route(t, mentioned("广播 y"))
	if len(f.rec.sent) != 1 || len(f.rec.waits) != 0 {
		t.Fatalf("sent = %q waits = %v", f.rec.sent, f.rec.waits)
	}
}

func TestBroadcastDisabledIsSilent(t *testing.T) {
	f := newFixture()
	f.toggles.SetEnabled(FeatureBroadcast, "-100123", false)
	f.route(t, mentioned("广播 x"))
	if len(f.rec.sent) != 0 {
		t.Fatalf("sent = %q", f.rec.sent)
	}
	// Follow is unaffected by the broadcast switch.
	f.route(t, mentioned("跟我说 y"))
	if len(f.rec.sent) != 1 || f.rec.sent[0] != "y" {
		t.Fatalf("sent = %q", f.rec.sent)
	}
}

func TestRepeatDisabledGatesBothTriggers(t *testing.T) {
	f := newFixture()
	f.toggles.SetEnabled(FeatureRepeat, "-100123", false)
	for _, text := range []string{"跟我说 a", "广播 b"} {
		if out := f.route(t, mentioned(text)); out != Ignored {
			t.Fatalf("%q outcome = %v", text, out)
		}
	}
	if len(f.rec.sent) != 0 {
		t.Fatalf("sent = %q", f.rec.sent)
	}

	f.toggles.SetEnabled(FeatureRepeat, "-100123", true)
	f.route(t, mentioned("跟我说 a"))
	if len(f.rec.sent) != 1 {
		t.Fatalf("not restored, sent = %q", f.rec.sent)
	}
}

func TestRouterGuards(t *testing.T) {
	notMentioned := mentioned("跟我说 a")
	notMentioned.Mentions = []kit.Mention{{QQ: "20002"}}

	private := mentioned("跟我说 a")
	private.IsGroup = false

	viaTargetID := mentioned("跟我说 a")
	viaTargetID.Mentions = []kit.Mention{{TargetID: "10001"}}

	cases := []struct {
		name string
		msg  *kit.Message
		want Outcome
	}{
		{"nil message", nil, Ignored},
		{"empty message", &kit.Message{IsGroup: true, SelfID: selfID}, Ignored},
		{"not mentioned", notMentioned, Ignored},
		{"private chat", private, Ignored},
		{"no trigger", mentioned("你好"), Ignored},
		{"mention via target_id", viaTargetID, Handled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			if got := f.route(t, tc.msg); got != tc.want {
				t.Fatalf("outcome = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFirstMatchWins(t *testing.T) {
	f := newFixture()
	// Both phrases present: the follow trigger comes first in the table.
	f.route(t, mentioned("广播 跟我说 x"))
	if len(f.rec.sent) != 1 || f.rec.sent[0] != "x" {
		t.Fatalf("sent = %q", f.rec.sent)
	}
	if len(f.rec.waits) != 0 {
		t.Fatalf("broadcast ran too, waits = %v", f.rec.waits)
	}
}

func TestRouterSelectsByLiteralPhrase(t *testing.T) {
	f := newFixture()
	// The extractor tolerates spacing, but selection needs the literal phrase.
	for _, text := range []string{"跟 我 说 x", "广 播 x"} {
		if out := f.route(t, mentioned(text)); out != Ignored {
			t.Fatalf("%q outcome = %v", text, out)
		}
	}
	if len(f.rec.sent) != 0 {
		t.Fatalf("sent = %q", f.rec.sent)
	}
}

func TestRouterPropagatesEmitErrors(t *testing.T) {
	f := newFixture()
	f.rec.fail = errors.New("send failed")
	out, err := f.router.Route(context.Background(), mentioned("跟我说 a"), f.rec.emit)
	if err == nil || out != Handled {
		t.Fatalf("Route() = (%v, %v)", out, err)
	}
}

type panicHandler struct{}

func (panicHandler) Handle(context.Context, *kit.Message, Emit) error { panic("boom") }

func TestRouterRecoversPanics(t *testing.T) {
	f := newFixture()
	f.router.routes = []route{{phrase: PhraseFollow, handler: panicHandler{}}}
	out, err := f.router.Route(context.Background(), mentioned("跟我说 a"), f.rec.emit)
	if err == nil || out != Ignored {
		t.Fatalf("Route() = (%v, %v), want error", out, err)
	}
}

func TestBroadcastStopsOnCancel(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	emitted := 0
	emit := func(ctx context.Context, text string) error {
		emitted++
		if emitted == 2 {
			cancel()
		}
		return nil
	}
	_, err := f.router.Route(ctx, mentioned("广播 x"), emit)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if emitted != 2 {
		t.Fatalf("emitted = %d, want 2", emitted)
	}
}

func TestBroadcastCanceledBeforeFirstSend(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.router.Route(ctx, mentioned("广播 x"), f.rec.emit)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(f.rec.sent) != 0 {
		t.Fatalf("sent = %q, want nothing", f.rec.sent)
	}
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepCtx(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleepCtx err = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleepCtx ignored cancellation")
	}
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleepCtx err = %v", err)
	}
}
