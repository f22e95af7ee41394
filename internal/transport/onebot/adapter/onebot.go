package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	rtsup "followbot/internal/runtime/supervisor"
	kit "followbot/internal/transport"
	logx "followbot/pkg/logx"
)

type Config struct {
	// URL is the OneBot v11 forward websocket endpoint, e.g. ws://127.0.0.1:3001.
	URL          string
	AccessToken  string
	ReconnectMax time.Duration
}

var ErrNotConnected = errors.New("onebot: not connected")

const callTimeout = 10 * time.Second

type apiRequest struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

type textSegment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

type Adapter struct {
	cfg    Config
	log    logx.Logger
	dialer *websocket.Dialer

	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	waitMu  sync.Mutex
	waiters map[string]chan gjson.Result

	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("onebot url is empty")
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		waiters: map[string]chan gjson.Result{},
	}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	return a, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "onebot.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
				}
			}
		}
	})

	// Each run owns one connection; a read error ends the run and the supervisor redials.
	sup.GoRestart("onebot.conn", a.runConn,
		rtsup.WithRestartBackoff(time.Second, a.cfg.ReconnectMax),
		rtsup.WithPublishFirstError(false),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) runConn(ctx context.Context) error {
	header := http.Header{}
	if a.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+a.cfg.AccessToken)
	}
	conn, _, err := a.dialer.DialContext(ctx, a.cfg.URL, header)
	if err != nil {
		a.log.Warn("onebot dial failed", logx.String("url", a.cfg.URL), logx.Err(err))
		return err
	}
	a.setConn(conn)
	a.log.Info("onebot connected", logx.String("url", a.cfg.URL))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer func() {
		a.setConn(nil)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.log.Warn("onebot read failed", logx.Err(err))
			return err
		}
		a.handleFrame(data)
	}
}

func (a *Adapter) setConn(c *websocket.Conn) {
	a.connMu.Lock()
	a.conn = c
	a.connMu.Unlock()
}

func (a *Adapter) handleFrame(data []byte) {
	if !gjson.ValidBytes(data) {
		a.log.Debug("onebot frame is not json", logx.Int("len", len(data)))
		return
	}
	frame := gjson.ParseBytes(data)
	if echo := frame.Get("echo"); echo.Exists() && !frame.Get("post_type").Exists() {
		a.resolve(echo.String(), frame)
		return
	}
	msg, ok := parseEvent(frame)
	if !ok {
		return
	}
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- kit.Update{Kind: kit.UpdateMessage, Message: msg}:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) resolve(echo string, frame gjson.Result) {
	a.waitMu.Lock()
	ch := a.waiters[echo]
	a.waitMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- frame:
	default:
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Debug("onebot stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// SendText sends text as a single text segment so no CQ escaping is needed.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	action, params := sendRequest(to, text)
	resp, err := a.call(ctx, action, params)
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: int(resp.Get("data.message_id").Int())}, nil
}

func sendRequest(to kit.ChatTarget, text string) (string, map[string]any) {
	msg := []textSegment{{Type: "text", Data: map[string]string{"text": text}}}
	if to.Group {
		return "send_group_msg", map[string]any{"group_id": to.ChatID, "message": msg}
	}
	return "send_private_msg", map[string]any{"user_id": to.ChatID, "message": msg}
}

// call performs one OneBot action and waits for the echoed response.
func (a *Adapter) call(ctx context.Context, action string, params any) (gjson.Result, error) {
	a.connMu.Lock()
	conn := a.conn
	a.connMu.Unlock()
	if conn == nil {
		return gjson.Result{}, ErrNotConnected
	}

	echo := uuid.NewString()
	ch := make(chan gjson.Result, 1)
	a.waitMu.Lock()
	a.waiters[echo] = ch
	a.waitMu.Unlock()
	defer func() {
		a.waitMu.Lock()
		delete(a.waiters, echo)
		a.waitMu.Unlock()
	}()

	payload, err := json.Marshal(apiRequest{Action: action, Params: params, Echo: echo})
	if err != nil {
		return gjson.Result{}, err
	}
	a.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err = conn.WriteMessage(websocket.TextMessage, payload)
	a.writeMu.Unlock()
	if err != nil {
		return gjson.Result{}, fmt.Errorf("onebot %s: %w", action, err)
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if st := resp.Get("status").String(); st != "ok" && st != "async" {
			return resp, fmt.Errorf("onebot %s: status=%s retcode=%d %s", action, st, resp.Get("retcode").Int(), resp.Get("wording").String())
		}
		return resp, nil
	case <-timer.C:
		return gjson.Result{}, fmt.Errorf("onebot %s: response timeout", action)
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	}
}
