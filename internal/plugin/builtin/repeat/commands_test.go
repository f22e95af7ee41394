package repeat

import (
	"math"
	"strings"
	"testing"
)

func TestApplyToggle(t *testing.T) {
	bc := BroadcastConfig{Count: 3, Interval: 1.5}

	cases := []struct {
		name        string
		feature     Feature
		group       string
		arg         string
		wantReply   string
		wantChanged bool
	}{
		{"private repeat", FeatureRepeat, "", "off", msgGroupOnly, false},
		{"private broadcast", FeatureBroadcast, "", "", msgGroupOnly, false},
		{"repeat off", FeatureRepeat, "1", "off", msgRepeatOff, true},
		{"repeat on", FeatureRepeat, "1", "on", msgRepeatOn, true},
		{"broadcast off", FeatureBroadcast, "1", "off", msgBroadcastOff, true},
		{"broadcast on", FeatureBroadcast, "1", "on", msgBroadcastOn, true},
		{"repeat help", FeatureRepeat, "1", "", helpToggleGroups, false},
		{"repeat bad arg", FeatureRepeat, "1", "maybe", usageRepeat, false},
		{"broadcast bad arg", FeatureBroadcast, "1", "OFF", usageBroadcast, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemoryToggles()
			res := applyToggle(store, tc.feature, tc.group, tc.arg, bc)
			if res.reply != tc.wantReply || res.changed != tc.wantChanged {
				t.Fatalf("applyToggle() = %+v", res)
			}
		})
	}
}

func TestApplyToggleMutatesOnlyItsFeature(t *testing.T) {
	store := NewMemoryToggles()
	bc := defaultBroadcast()

	applyToggle(store, FeatureRepeat, "1", "off", bc)
	if store.Enabled(FeatureRepeat, "1") || !store.Enabled(FeatureBroadcast, "1") {
		t.Fatalf("repeat off leaked into broadcast")
	}
	applyToggle(store, FeatureBroadcast, "1", "off", bc)
	applyToggle(store, FeatureRepeat, "1", "on", bc)
	if !store.Enabled(FeatureRepeat, "1") || store.Enabled(FeatureBroadcast, "1") {
		t.Fatalf("repeat on leaked into broadcast")
	}

	// Usage and status replies never mutate.
	applyToggle(store, FeatureBroadcast, "1", "", bc)
	applyToggle(store, FeatureBroadcast, "1", "toggle", bc)
	if store.Enabled(FeatureBroadcast, "1") {
		t.Fatalf("read-only reply changed state")
	}
}

func TestBroadcastStatusReply(t *testing.T) {
	res := applyToggle(NewMemoryToggles(), FeatureBroadcast, "1", "", BroadcastConfig{Count: 5, Interval: 2})
	if !strings.Contains(res.reply, "次数 5") || !strings.Contains(res.reply, "间隔 2 秒") || !strings.Contains(res.reply, usageBroadcast) {
		t.Fatalf("reply = %q", res.reply)
	}
	for _, sub := range []string{"/repeat on", "/repeat off", "/broadcast on", "/broadcast off"} {
		if !strings.Contains(helpToggleGroups, sub) {
			t.Fatalf("help missing %s", sub)
		}
	}
}

func TestParseConfig(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    BroadcastConfig
		wantErr bool
	}{
		{"empty", ``, defaultBroadcast(), false},
		{"no broadcast block", `{}`, defaultBroadcast(), false},
		{"count only", `{"broadcast":{"count":3}}`, BroadcastConfig{Count: 3, Interval: 2}, false},
		{"zero count means default", `{"broadcast":{"count":0,"interval":0}}`, BroadcastConfig{Count: 5, Interval: 0}, false},
		{"fractional interval", `{"broadcast":{"interval":0.5}}`, BroadcastConfig{Count: 5, Interval: 0.5}, false},
		{"negative count", `{"broadcast":{"count":-1}}`, BroadcastConfig{}, true},
		{"negative interval", `{"broadcast":{"interval":-2}}`, BroadcastConfig{}, true},
		{"interval overflows duration", `{"broadcast":{"interval":1e11}}`, BroadcastConfig{}, true},
		{"interval at duration limit", `{"broadcast":{"interval":9e9}}`, BroadcastConfig{Count: 5, Interval: 9e9}, false},
		{"unknown field", `{"broadcast":{"times":3}}`, BroadcastConfig{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseConfig([]byte(tc.raw))
			if (err != nil) != tc.wantErr {
				t.Fatalf("parseConfig() err = %v", err)
			}
			if !tc.wantErr && got != tc.want {
				t.Fatalf("parseConfig() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestCheckInterval(t *testing.T) {
	cases := []struct {
		iv      float64
		wantErr bool
	}{
		{0, false},
		{2, false},
		{maxInterval, true},
		{-0.1, true},
		{maxInterval * 2, true},
		{math.Inf(1), true},
		{math.NaN(), true},
	}
	for _, tc := range cases {
		if err := checkInterval(tc.iv); (err != nil) != tc.wantErr {
			t.Fatalf("checkInterval(%v) err = %v, wantErr %v", tc.iv, err, tc.wantErr)
		}
	}
	if d := (BroadcastConfig{Interval: 9e9}).Wait(); d <= 0 {
		t.Fatalf("Wait() = %v, want positive", d)
	}
}
