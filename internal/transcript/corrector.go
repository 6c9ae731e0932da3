// Package transcript corrects misheard names and jargon in final transcripts
// before they are stored and delivered.
//
// STT engines reliably mangle proper nouns they have never seen ("Nakamora"
// for "Nakamura"). The [Corrector] scans a transcript for word windows that
// sound like one of the configured keywords and replaces them with the
// keyword's canonical spelling. Keywords are the same hints that boost
// recognition, so a keyword the provider ignored still gets a second chance.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// defaultMinTokenLen is the shortest word considered for single-word matches.
const defaultMinTokenLen = 3

// PhoneticMatcher finds the keyword that best matches a spoken word or phrase.
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match returns the best keyword for word. When matched is false the
	// returned string equals word.
	Match(word string, keywords []string) (corrected string, confidence float64, matched bool)
}

// Correction records one replacement made by the [Corrector].
type Correction struct {
	// Original is the span as transcribed, without surrounding punctuation.
	Original string

	// Corrected is the canonical keyword that replaced it.
	Corrected string

	// Confidence is the matcher's score in [0, 1].
	Confidence float64
}

// Result is the outcome of [Corrector.Correct].
type Result struct {
	Text        string
	Corrections []Correction
}

// CorrectorOption configures a [Corrector].
type CorrectorOption func(*Corrector)

// WithMinTokenLen sets the shortest word that may be corrected on its own.
// Shorter words are still considered as part of a multi-word window.
func WithMinTokenLen(n int) CorrectorOption {
	return func(c *Corrector) { c.minTokenLen = n }
}

// Corrector rewrites transcript text against a keyword vocabulary. It is
// stateless and safe for concurrent use.
type Corrector struct {
	matcher     PhoneticMatcher
	minTokenLen int
}

// NewCorrector returns a [Corrector] that uses m to score candidates.
func NewCorrector(m PhoneticMatcher, opts ...CorrectorOption) *Corrector {
	c := &Corrector{matcher: m, minTokenLen: defaultMinTokenLen}
	for _, o := range opts {
		o(c)
	}
	return c
}

// token is one whitespace-separated word split into its leading punctuation,
// its core, and its trailing punctuation.
type token struct {
	lead, core, trail string
}

// Correct replaces spans of text that match a keyword. Windows are tried
// longest first at each position, so "grace hoper" becomes "Grace Hopper"
// rather than two separate single-word corrections. Spans already spelled
// like a keyword are left alone. Whitespace is normalised to single spaces
// only when a correction is made.
func (c *Corrector) Correct(text string, keywords []string) Result {
	if len(keywords) == 0 || strings.TrimSpace(text) == "" {
		return Result{Text: text}
	}

	exact := make(map[string]struct{}, len(keywords))
	byWords := make(map[int][]string)
	maxWords := 0
	for _, kw := range keywords {
		fields := strings.Fields(kw)
		if len(fields) == 0 {
			continue
		}
		exact[strings.Join(fields, " ")] = struct{}{}
		byWords[len(fields)] = append(byWords[len(fields)], kw)
		maxWords = max(maxWords, len(fields))
	}
	if maxWords == 0 {
		return Result{Text: text}
	}

	tokens := splitTokens(text)
	out := make([]string, 0, len(tokens))
	var corrections []Correction

	for i := 0; i < len(tokens); {
		n, corr, ok := c.matchAt(tokens, i, maxWords, byWords, exact)
		switch {
		case ok:
			out = append(out, tokens[i].lead+corr.Corrected+tokens[i+n-1].trail)
			corrections = append(corrections, corr)
		case n == 0:
			n = 1
			fallthrough
		default:
			for _, t := range tokens[i : i+n] {
				out = append(out, t.lead+t.core+t.trail)
			}
		}
		i += n
	}

	if len(corrections) == 0 {
		return Result{Text: text}
	}
	return Result{Text: strings.Join(out, " "), Corrections: corrections}
}

// matchAt tries windows of maxWords down to one token starting at i. A window
// is only compared with keywords of the same word count. It returns the
// number of tokens consumed; a span already spelled like a keyword is
// consumed without a correction so its words are not rewritten one by one.
func (c *Corrector) matchAt(tokens []token, i, maxWords int, byWords map[int][]string, exact map[string]struct{}) (int, Correction, bool) {
	for n := min(maxWords, len(tokens)-i); n >= 1; n-- {
		window := tokens[i : i+n]
		if !joinable(window) {
			continue
		}
		span := joinCores(window)
		if _, ok := exact[span]; ok {
			return n, Correction{}, false
		}
		candidates := byWords[n]
		if len(candidates) == 0 {
			continue
		}
		if n == 1 && utf8.RuneCountInString(span) < c.minTokenLen {
			continue
		}
		corrected, conf, ok := c.matcher.Match(span, candidates)
		if !ok || corrected == span {
			continue
		}
		return n, Correction{Original: span, Corrected: corrected, Confidence: conf}, true
	}
	return 0, Correction{}, false
}

// joinable reports whether a window can be replaced as a unit. Punctuation
// inside the window ("Smith. Then") ends a phrase.
func joinable(window []token) bool {
	for j, t := range window {
		if t.core == "" {
			return false
		}
		if j > 0 && t.lead != "" {
			return false
		}
		if j < len(window)-1 && t.trail != "" {
			return false
		}
	}
	return true
}

func joinCores(window []token) string {
	parts := make([]string, len(window))
	for j, t := range window {
		parts[j] = t.core
	}
	return strings.Join(parts, " ")
}

func splitTokens(text string) []token {
	fields := strings.Fields(text)
	tokens := make([]token, len(fields))
	for i, f := range fields {
		core := strings.TrimFunc(f, isEdgePunct)
		if core == "" {
			tokens[i] = token{lead: f}
			continue
		}
		start := strings.Index(f, core)
		tokens[i] = token{lead: f[:start], core: core, trail: f[start+len(core):]}
	}
	return tokens
}

func isEdgePunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
