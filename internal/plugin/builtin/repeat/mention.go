package repeat

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	kit "followbot/internal/transport"
)

// mentionField reads one candidate target field of a mention.
type mentionField struct {
	name string
	get  func(kit.Mention) any
}

// mentionFields is checked in order; the first populated field is the mention target.
var mentionFields = []mentionField{
	{"qq", func(m kit.Mention) any { return m.QQ }},
	{"target", func(m kit.Mention) any { return m.Target }},
	{"user_id", func(m kit.Mention) any { return m.UserID }},
	{"target_id", func(m kit.Mention) any { return m.TargetID }},
	{"id", func(m kit.Mention) any { return m.ID }},
}

// mentionTarget returns the first populated target field of m.
func mentionTarget(m kit.Mention) (string, bool) {
	for _, f := range mentionFields {
		if id := idString(f.get(m)); id != "" {
			return id, true
		}
	}
	return "", false
}

// MentionsSelf reports whether any mention targets selfID.
// Ids compare as strings, so 10001, int64(10001) and "10001" are equal.
func MentionsSelf(mentions []kit.Mention, selfID string) bool {
	selfID = strings.TrimSpace(selfID)
	if selfID == "" {
		return false
	}
	for _, m := range mentions {
		if id, ok := mentionTarget(m); ok && id == selfID {
			return true
		}
	}
	return false
}

func idString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case *string:
		if x == nil {
			return ""
		}
		return strings.TrimSpace(*x)
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return strings.TrimSpace(x.String())
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
