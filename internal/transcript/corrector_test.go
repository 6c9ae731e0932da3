package transcript_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/meetscribe/internal/transcript"
	"github.com/MrWong99/meetscribe/internal/transcript/phonetic"
)

// tableMatcher matches spans listed in its table, case-insensitively.
type tableMatcher struct {
	table map[string]string
	calls []string
}

func (m *tableMatcher) Match(word string, _ []string) (string, float64, bool) {
	m.calls = append(m.calls, word)
	if kw, ok := m.table[strings.ToLower(word)]; ok {
		return kw, 0.9, true
	}
	return word, 0, false
}

func TestCorrector_Table(t *testing.T) {
	t.Parallel()

	keywords := []string{"Nakamura", "Grace Hopper", "Kubernetes"}
	matcher := &tableMatcher{table: map[string]string{
		"nakamora":    "Nakamura",
		"grace hoper": "Grace Hopper",
		"hoper":       "Hopper-should-not-be-used",
		"cubernetes":  "Kubernetes",
	}}
	c := transcript.NewCorrector(matcher)

	tests := []struct {
		name  string
		text  string
		want  string
		count int
	}{
		{name: "single word", text: "thanks nakamora for joining", want: "thanks Nakamura for joining", count: 1},
		{name: "keeps punctuation", text: "Ask Nakamora, then move on.", want: "Ask Nakamura, then move on.", count: 1},
		{name: "longest window first", text: "grace hoper presented", want: "Grace Hopper presented", count: 1},
		{name: "trailing punctuation on phrase", text: "over to grace hoper.", want: "over to Grace Hopper.", count: 1},
		{name: "punctuation splits phrase", text: "grace. hoper", want: "grace. Hopper-should-not-be-used", count: 1},
		{name: "several corrections", text: "nakamora runs cubernetes", want: "Nakamura runs Kubernetes", count: 2},
		{name: "already correct", text: "Grace Hopper and Nakamura", want: "Grace Hopper and Nakamura", count: 0},
		{name: "nothing to fix", text: "  let's   start  ", want: "  let's   start  ", count: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Correct(tt.text, keywords)
			if got.Text != tt.want {
				t.Errorf("Correct(%q).Text = %q, want %q", tt.text, got.Text, tt.want)
			}
			if len(got.Corrections) != tt.count {
				t.Errorf("Correct(%q): %d corrections, want %d", tt.text, len(got.Corrections), tt.count)
			}
		})
	}
}

func TestCorrector_RecordsCorrection(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(&tableMatcher{table: map[string]string{"nakamora": "Nakamura"}})
	got := c.Correct("hi Nakamora!", []string{"Nakamura"})

	if len(got.Corrections) != 1 {
		t.Fatalf("corrections = %d, want 1", len(got.Corrections))
	}
	corr := got.Corrections[0]
	if corr.Original != "Nakamora" || corr.Corrected != "Nakamura" || corr.Confidence != 0.9 {
		t.Errorf("correction = %+v", corr)
	}
	if got.Text != "hi Nakamura!" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestCorrector_SkipsShortWords(t *testing.T) {
	t.Parallel()

	m := &tableMatcher{table: map[string]string{"al": "Al"}}
	c := transcript.NewCorrector(m)
	c.Correct("ok al", []string{"Alice"})
	for _, call := range m.calls {
		if call == "al" || call == "ok" {
			t.Errorf("matcher called with short word %q", call)
		}
	}

	m = &tableMatcher{table: map[string]string{"al": "Al"}}
	if got := transcript.NewCorrector(m, transcript.WithMinTokenLen(1)).Correct("ok al", []string{"Al"}); got.Text != "ok Al" {
		t.Errorf("with min len 1: Text = %q, want %q", got.Text, "ok Al")
	}
}

func TestCorrector_NoKeywords(t *testing.T) {
	t.Parallel()

	m := &tableMatcher{}
	c := transcript.NewCorrector(m)
	for _, kws := range [][]string{nil, {"", "   "}} {
		if got := c.Correct("nakamora", kws); got.Text != "nakamora" || got.Corrections != nil {
			t.Errorf("Correct with keywords %q = %+v", kws, got)
		}
	}
	if len(m.calls) != 0 {
		t.Errorf("matcher called %d times without keywords", len(m.calls))
	}
}

func TestCorrector_WithPhoneticMatcher(t *testing.T) {
	t.Parallel()

	c := transcript.NewCorrector(phonetic.New())
	got := c.Correct("I spoke with Nakamora yesterday.", []string{"Nakamura", "Grace Hopper"})
	if got.Text != "I spoke with Nakamura yesterday." {
		t.Errorf("Text = %q", got.Text)
	}
}
