package phonetic_test

import (
	"testing"

	"github.com/MrWong99/meetscribe/internal/transcript/phonetic"
)

func TestMatcher_SingleWordMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	keywords := []string{"Nakamura", "Okonkwo", "Kubernetes"}

	corrected, conf, matched := m.Match("Nakamora", keywords)
	if !matched {
		t.Fatalf("Match(%q): matched=false, want true", "Nakamora")
	}
	if corrected != "Nakamura" {
		t.Errorf("Match(%q): corrected=%q, want %q", "Nakamora", corrected, "Nakamura")
	}
	if conf < 0.9 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.9", "Nakamora", conf)
	}
}

func TestMatcher_CaseOnly(t *testing.T) {
	t.Parallel()

	corrected, conf, matched := phonetic.New().Match("kubernetes", []string{"Kubernetes"})
	if !matched || corrected != "Kubernetes" {
		t.Fatalf("Match = (%q, %v), want (Kubernetes, true)", corrected, matched)
	}
	if conf != 1 {
		t.Errorf("confidence = %f, want 1", conf)
	}
}

func TestMatcher_MultiWordKeyword(t *testing.T) {
	t.Parallel()

	corrected, _, matched := phonetic.New().Match("grace hoper", []string{"Grace Hopper", "Nakamura"})
	if !matched || corrected != "Grace Hopper" {
		t.Fatalf("Match = (%q, %v), want (Grace Hopper, true)", corrected, matched)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	for _, word := range []string{"hello", "the", "meeting"} {
		corrected, conf, matched := m.Match(word, []string{"Nakamura", "Okonkwo"})
		if matched {
			t.Errorf("Match(%q): matched %q, want no match", word, corrected)
		}
		if corrected != word || conf != 0 {
			t.Errorf("Match(%q) = (%q, %f), want input unchanged and 0", word, corrected, conf)
		}
	}
}

func TestMatcher_LengthGuard(t *testing.T) {
	t.Parallel()

	// Shares a prefix with the keyword but is far shorter.
	if corrected, _, matched := phonetic.New().Match("open", []string{"OpenTelemetry"}); matched {
		t.Errorf("Match(open) = %q, want no match", corrected)
	}
}

func TestMatcher_EmptyInputs(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if _, _, matched := m.Match("Nakamura", nil); matched {
		t.Error("matched with no keywords")
	}
	if _, _, matched := m.Match("   ", []string{"Nakamura"}); matched {
		t.Error("matched blank input")
	}
	if _, _, matched := m.Match("Nakamura", []string{"", "  "}); matched {
		t.Error("matched blank keyword")
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	strict := phonetic.New(phonetic.WithPhoneticThreshold(0.99), phonetic.WithFuzzyThreshold(0.99))
	if _, _, matched := strict.Match("Nakamora", []string{"Nakamura"}); matched {
		t.Error("strict matcher accepted a 0.95 match")
	}
}
