package repeat

import "testing"

func TestExtractor(t *testing.T) {
	follow := NewExtractor(PhraseFollow)
	cases := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"plain", "跟我说你好", "你好", true},
		{"spaced phrase", "跟 我 说 你好", "你好", true},
		{"tabs and newlines", "跟\t我\n说\n\n  hello world  ", "hello world", true},
		{"full-width space", "跟　我说　早上好", "早上好", true},
		{"vertical tab", "跟\v我说x", "x", true},
		{"next line", "跟\u0085我说x", "x", true},
		{"information separator", "跟\x1c我\x1f说x", "x", true},
		{"no-break space", "跟\u00a0我说\u2003x", "x", true},
		{"prefix text", "@bot 请跟我说 晚安", "晚安", true},
		{"multiline payload", "跟我说 第一行\n第二行", "第一行\n第二行", true},
		{"empty payload", "跟我说", "", false},
		{"whitespace payload", "跟我说   \n ", "", false},
		{"separator-only payload", "跟我说\x1c\u0085\v", "", false},
		{"absent", "你好", "", false},
		{"partial phrase", "跟我 你好", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := follow.Extract(tc.text)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("Extract(%q) = (%q, %v), want (%q, %v)", tc.text, got, ok, tc.want, tc.wantOK)
			}
		})
	}

	bc := NewExtractor(PhraseBroadcast)
	if got, ok := bc.Extract("广 播 开会了"); !ok || got != "开会了" {
		t.Fatalf("broadcast Extract = (%q, %v)", got, ok)
	}
	if bc.Phrase() != "广播" {
		t.Fatalf("Phrase() = %q", bc.Phrase())
	}
}

func TestExtractorQuotesPhrase(t *testing.T) {
	e := NewExtractor("a.b")
	if _, ok := e.Extract("axb payload"); ok {
		t.Fatalf("phrase characters must match literally")
	}
	if got, ok := e.Extract("a . b payload"); !ok || got != "payload" {
		t.Fatalf("Extract = (%q, %v)", got, ok)
	}
}
