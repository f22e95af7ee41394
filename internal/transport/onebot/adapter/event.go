package adapter

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	kit "followbot/internal/transport"
)

var cqPattern = regexp.MustCompile(`\[CQ:([a-zA-Z0-9_]+)(?:,([^\]]*))?\]`)

var cqUnescaper = strings.NewReplacer("&#44;", ",", "&#91;", "[", "&#93;", "]", "&amp;", "&")

// parseEvent converts a OneBot v11 message event. Non-message frames report false.
// At segments become mentions and are left out of the text.
func parseEvent(ev gjson.Result) (*kit.Message, bool) {
	if ev.Get("post_type").String() != "message" {
		return nil, false
	}
	msg := &kit.Message{
		ID:           int(ev.Get("message_id").Int()),
		FromID:       ev.Get("user_id").Int(),
		FromUsername: ev.Get("sender.nickname").String(),
		SelfID:       ev.Get("self_id").String(),
	}
	switch ev.Get("message_type").String() {
	case "group":
		msg.IsGroup = true
		msg.ChatID = ev.Get("group_id").Int()
	case "private":
		msg.ChatID = msg.FromID
	default:
		return nil, false
	}

	var text strings.Builder
	body := ev.Get("message")
	switch {
	case body.IsArray():
		body.ForEach(func(_, seg gjson.Result) bool {
			switch seg.Get("type").String() {
			case "text":
				text.WriteString(seg.Get("data.text").String())
			case "at":
				msg.Mentions = append(msg.Mentions, kit.Mention{QQ: seg.Get("data.qq").String()})
			}
			return true
		})
	case body.Type == gjson.String:
		parseCQ(body.String(), &text, msg)
	default:
		parseCQ(ev.Get("raw_message").String(), &text, msg)
	}
	msg.Text = strings.TrimSpace(text.String())
	return msg, true
}

// parseCQ handles the string message format, e.g. "[CQ:at,qq=10001] 跟我说 hi".
func parseCQ(s string, text *strings.Builder, msg *kit.Message) {
	cursor := 0
	for _, m := range cqPattern.FindAllStringSubmatchIndex(s, -1) {
		text.WriteString(cqUnescaper.Replace(s[cursor:m[0]]))
		cursor = m[1]
		if s[m[2]:m[3]] != "at" || m[4] < 0 {
			continue
		}
		for _, kv := range strings.Split(s[m[4]:m[5]], ",") {
			k, v, ok := strings.Cut(kv, "=")
			if ok && strings.TrimSpace(k) == "qq" {
				msg.Mentions = append(msg.Mentions, kit.Mention{QQ: cqUnescaper.Replace(strings.TrimSpace(v))})
			}
		}
	}
	text.WriteString(cqUnescaper.Replace(s[cursor:]))
}
