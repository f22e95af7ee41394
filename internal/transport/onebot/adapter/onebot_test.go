package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	kit "followbot/internal/transport"
	logx "followbot/pkg/logx"
)

func TestParseEventSegments(t *testing.T) {
	ev := gjson.Parse(`{
		"post_type":"message","message_type":"group","message_id":12,
		"group_id":123456,"user_id":777,"self_id":10001,
		"sender":{"nickname":"alice"},
		"message":[
			{"type":"at","data":{"qq":"10001"}},
			{"type":"text","data":{"text":" 广播 hello "}},
			{"type":"image","data":{"file":"x.jpg"}}
		]
	}`)
	msg, ok := parseEvent(ev)
	if !ok {
		t.Fatalf("parseEvent rejected a group message")
	}
	if !msg.IsGroup || msg.ChatID != 123456 || msg.FromID != 777 || msg.SelfID != "10001" || msg.FromUsername != "alice" {
		t.Fatalf("header = %+v", msg)
	}
	if msg.Text != "广播 hello" {
		t.Fatalf("Text = %q", msg.Text)
	}
	if len(msg.Mentions) != 1 || msg.Mentions[0].QQ != "10001" {
		t.Fatalf("Mentions = %+v", msg.Mentions)
	}
}

func TestParseEventCQString(t *testing.T) {
	ev := gjson.Parse(`{
		"post_type":"message","message_type":"private","user_id":5,"self_id":"10001",
		"message":"[CQ:at,qq=10001] 跟我说 a&#44;b &amp; [CQ:face,id=1]c"
	}`)
	msg, ok := parseEvent(ev)
	if !ok {
		t.Fatalf("parseEvent rejected a private message")
	}
	if msg.IsGroup || msg.ChatID != 5 {
		t.Fatalf("private chat = %+v", msg)
	}
	if msg.Text != "跟我说 a,b & c" {
		t.Fatalf("Text = %q", msg.Text)
	}
	if len(msg.Mentions) != 1 || msg.Mentions[0].QQ != "10001" {
		t.Fatalf("Mentions = %+v", msg.Mentions)
	}
}

func TestParseEventIgnoresOtherPosts(t *testing.T) {
	for _, raw := range []string{
		`{"post_type":"meta_event","meta_event_type":"heartbeat"}`,
		`{"post_type":"notice","notice_type":"group_increase"}`,
		`{"post_type":"message","message_type":"guild"}`,
	} {
		if _, ok := parseEvent(gjson.Parse(raw)); ok {
			t.Fatalf("parseEvent(%s) accepted", raw)
		}
	}
}

func TestSendRequest(t *testing.T) {
	action, params := sendRequest(kit.ChatTarget{ChatID: 42, Group: true}, "hi")
	if action != "send_group_msg" || params["group_id"] != int64(42) {
		t.Fatalf("group send = %s %+v", action, params)
	}
	action, params = sendRequest(kit.ChatTarget{ChatID: 7}, "hi")
	if action != "send_private_msg" || params["user_id"] != int64(7) {
		t.Fatalf("private send = %s %+v", action, params)
	}
}

func TestAdapterRoundTrip(t *testing.T) {
	actions := make(chan gjson.Result, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		event := `{"post_type":"message","message_type":"group","group_id":1,"user_id":2,"self_id":3,"message":[{"type":"text","data":{"text":"ping"}}]}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(event)); err != nil {
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			req := gjson.ParseBytes(data)
			actions <- req
			resp := `{"status":"ok","retcode":0,"data":{"message_id":99},"echo":"` + req.Get("echo").String() + `"}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(resp)); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	a, err := New(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), AccessToken: "tok"}, logx.Nop())
	if err != nil {
		t.Fatalf("New() err = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan kit.Update, 4)
	if err := a.Start(ctx, out); err != nil {
		t.Fatalf("Start() err = %v", err)
	}
	defer a.Stop(context.Background())

	var up kit.Update
	select {
	case up = <-out:
	case <-time.After(3 * time.Second):
		t.Fatalf("no update received")
	}
	if up.Message == nil || up.Message.Text != "ping" || !up.Message.IsGroup {
		t.Fatalf("update = %+v", up.Message)
	}

	ref, err := a.SendText(ctx, kit.TargetOf(up.Message), "pong", nil)
	if err != nil {
		t.Fatalf("SendText() err = %v", err)
	}
	if ref.MessageID != 99 {
		t.Fatalf("MessageID = %d", ref.MessageID)
	}
	req := <-actions
	if req.Get("action").String() != "send_group_msg" || req.Get("params.message.0.data.text").String() != "pong" {
		t.Fatalf("request = %s", req.Raw)
	}
}

func TestSendTextNotConnected(t *testing.T) {
	a, err := New(Config{URL: "ws://127.0.0.1:1"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: 1}, "x", nil); err != ErrNotConnected {
		t.Fatalf("SendText() err = %v, want ErrNotConnected", err)
	}
}
