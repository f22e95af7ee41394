package repeat

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	PhraseFollow    = "跟我说"
	PhraseBroadcast = "广播"
)

// Extractor pulls the payload that follows a trigger phrase. Whitespace is
// allowed between the phrase's characters, so "跟 我 说" matches "跟我说".
type Extractor struct {
	phrase string
	re     *regexp.Regexp
}

func NewExtractor(phrase string) *Extractor {
	// \s is ASCII-only and \p{Z} lacks the C0/C1 separators.
	const ws = `[\s\p{Z}\v\x{85}\x{1c}-\x{1f}]*`
	parts := make([]string, 0, len(phrase))
	for _, r := range phrase {
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	return &Extractor{
		phrase: phrase,
		re:     regexp.MustCompile(strings.Join(parts, ws) + ws + `([\s\S]*)`),
	}
}

func (e *Extractor) Phrase() string { return e.phrase }

// Extract returns the trimmed text after the first occurrence of the phrase.
// ok is false when the phrase is absent or nothing follows it.
func (e *Extractor) Extract(text string) (payload string, ok bool) {
	m := e.re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	payload = strings.TrimFunc(m[1], isSpace)
	return payload, payload != ""
}

// isSpace matches the same runes as the separator class in NewExtractor.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}
