package router

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	kit "followbot/internal/transport"
	logx "followbot/pkg/logx"
)

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeAdapter struct {
	mu   sync.Mutex
	out  []sent
	sent chan sent
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{sent: make(chan sent, 64)} }

func (a *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                         { return nil }
func (a *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	a.out = append(a.out, sent{to: to, text: text})
	a.mu.Unlock()
	a.sent <- sent{to: to, text: text}
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (a *fakeAdapter) next(t *testing.T) sent {
	t.Helper()
	select {
	case s := <-a.sent:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for SendText")
		return sent{}
	}
}

func groupMsg(text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 42, FromID: 7, Text: text, IsGroup: true}}
}

func startManager(t *testing.T, cmds []Command, ls []Listener) (*fakeAdapter, chan kit.Update) {
	t.Helper()
	ad := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), ad, nil)
	m.SetRegistry(cmds, ls)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ad, updates
}

func TestCommandDispatch(t *testing.T) {
	echo := func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, req.Command+":"+strings.Join(req.Args, ","))
	}
	cmds := []Command{
		{Route: "repeat", Aliases: []string{"rp"}, Handle: echo},
		{Route: "admin audit", Handle: echo},
	}
	ad, updates := startManager(t, cmds, nil)

	cases := []struct {
		in   string
		want string
	}{
		{"/repeat off", "repeat:off"},
		{"/repeat@followbot on", "repeat:on"},
		{"/rp", "repeat:"},
		{"/admin audit 10", "admin audit:10"},
		{"/admin_audit 3", "admin audit:3"},
		{`/repeat "a b"`, "repeat:a b"},
	}
	for _, tc := range cases {
		updates <- groupMsg(tc.in)
		got := ad.next(t)
		if got.text != tc.want {
			t.Fatalf("%q -> %q, want %q", tc.in, got.text, tc.want)
		}
		if got.to.ChatID != 42 || !got.to.Group {
			t.Fatalf("reply target = %+v", got.to)
		}
	}
}

func TestUnknownCommandOnlyAnsweredInPrivate(t *testing.T) {
	ad, updates := startManager(t, nil, nil)

	updates <- groupMsg("/nope")
	priv := groupMsg("/nope")
	priv.Message.IsGroup = false
	updates <- priv

	got := ad.next(t)
	if got.to.Group || !strings.Contains(got.text, "/help") {
		t.Fatalf("unexpected reply %+v", got)
	}
	select {
	case extra := <-ad.sent:
		t.Fatalf("unexpected extra reply %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListenersReceiveNonCommandMessages(t *testing.T) {
	got := make(chan string, 4)
	ls := []Listener{{
		Name: "capture",
		Handle: func(ctx context.Context, req *Request) error {
			if req.Command != "" {
				t.Errorf("listener request has command %q", req.Command)
			}
			got <- req.Message.Text
			return nil
		},
	}}
	cmds := []Command{{Route: "repeat", Handle: func(ctx context.Context, req *Request) error { return nil }}}
	_, updates := startManager(t, cmds, ls)

	updates <- groupMsg("/repeat off")
	updates <- groupMsg("跟我说 你好")

	select {
	case text := <-got:
		if text != "跟我说 你好" {
			t.Fatalf("listener got %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listener not called")
	}
	select {
	case text := <-got:
		t.Fatalf("listener got command text %q", text)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListenerPanicIsContained(t *testing.T) {
	calls := make(chan struct{}, 4)
	ls := []Listener{{
		Name: "boom",
		Handle: func(ctx context.Context, req *Request) error {
			calls <- struct{}{}
			panic("boom")
		},
	}}
	_, updates := startManager(t, nil, ls)
	updates <- groupMsg("a")
	updates <- groupMsg("b")
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("listener call %d missing after panic", i)
		}
	}
}

func TestHelpText(t *testing.T) {
	ad := newFakeAdapter()
	m := NewCommandManager(logx.Nop(), ad, nil)
	m.SetRegistry([]Command{
		{Route: "repeat", Description: "开关跟读", Usage: "/repeat [on|off]", Handle: func(context.Context, *Request) error { return nil }},
	}, nil)

	top := m.helpText(nil)
	if !strings.Contains(top, "/repeat - 开关跟读") || !strings.Contains(top, "/help") {
		t.Fatalf("top help = %q", top)
	}
	node := m.helpText([]string{"repeat"})
	if !strings.Contains(node, "用法: /repeat [on|off]") {
		t.Fatalf("node help = %q", node)
	}
	if got := m.helpText([]string{"nope"}); !strings.Contains(got, "未知命令") {
		t.Fatalf("unknown help = %q", got)
	}
}

func TestTokenizeAndFlags(t *testing.T) {
	toks := tokenizeCommandLine(`/cmd a "b c" 'd' e\ f --k=v`)
	want := []string{"/cmd", "a", "b c", "d", "e f", "--k=v"}
	if !reflect.DeepEqual(toks, want) {
		t.Fatalf("tokens = %#v", toks)
	}

	pos, flags, bools := parseFlags([]string{"x", "--n", "3", "-v", "--dry", "-ab"})
	if !reflect.DeepEqual(pos, []string{"x"}) || flags["n"] != "3" {
		t.Fatalf("pos=%v flags=%v", pos, flags)
	}
	if !bools["v"] || !bools["dry"] || !bools["a"] || !bools["b"] {
		t.Fatalf("bools = %v", bools)
	}

	if w, target := splitCommandWord("/repeat@followbot"); w != "repeat" || target != "followbot" {
		t.Fatalf("splitCommandWord = %q, %q", w, target)
	}
}

func TestSanitizeMenuCommand(t *testing.T) {
	cases := map[string]string{
		"Repeat":      "repeat",
		"admin audit": "admin_audit",
		"a--b":        "a_b",
		"9lives":      "cmd_9lives",
		"广播":          "",
	}
	for in, want := range cases {
		if got := sanitizeMenuCommand(in); got != want {
			t.Fatalf("sanitizeMenuCommand(%q) = %q, want %q", in, got, want)
		}
	}
}
