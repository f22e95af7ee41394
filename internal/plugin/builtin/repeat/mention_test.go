package repeat

import (
	"encoding/json"
	"testing"

	kit "followbot/internal/transport"
)

func TestMentionsSelf(t *testing.T) {
	cases := []struct {
		name     string
		mentions []kit.Mention
		self     string
		want     bool
	}{
		{"qq int64", []kit.Mention{{QQ: int64(10001)}}, "10001", true},
		{"qq string", []kit.Mention{{QQ: "10001"}}, "10001", true},
		{"target_id only", []kit.Mention{{TargetID: 10001}}, "10001", true},
		{"user_id float", []kit.Mention{{UserID: float64(10001)}}, "10001", true},
		{"json number id", []kit.Mention{{ID: json.Number("10001")}}, "10001", true},
		{"other user", []kit.Mention{{QQ: int64(20002)}}, "10001", false},
		{"second mention matches", []kit.Mention{{QQ: "20002"}, {Target: "10001"}}, "10001", true},
		// qq is populated, so target_id is never consulted.
		{"first populated field wins", []kit.Mention{{QQ: "20002", TargetID: "10001"}}, "10001", false},
		{"empty fields skipped", []kit.Mention{{QQ: "", Target: nil, UserID: "10001"}}, "10001", true},
		{"no mentions", nil, "10001", false},
		{"unknown self", []kit.Mention{{QQ: "10001"}}, "", false},
		{"empty mention", []kit.Mention{{}}, "10001", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MentionsSelf(tc.mentions, tc.self); got != tc.want {
				t.Fatalf("MentionsSelf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIDString(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{42, "42"},
		{int32(-7), "-7"},
		{uint64(9), "9"},
		{1.5, "1.5"},
		{float64(1e21), "1000000000000000000000"},
		{" abc ", "abc"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := idString(tc.in); got != tc.want {
			t.Fatalf("idString(%#v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
