package attribution

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rewrite maps known mis-renderings of a word to its canonical spelling.
type Rewrite struct {
	Variants  []string `yaml:"variants"`
	Canonical string   `yaml:"canonical"`
}

// DefaultRewrites are the recognizer artifacts fixed out of the box.
var DefaultRewrites = []Rewrite{
	{Variants: []string{"leslim", "leslín", "les lim"}, Canonical: "SLIM"},
}

type compiledRewrite struct {
	re        *regexp.Regexp
	canonical string
}

// Normalizer applies whole-word, case-insensitive rewrites and nothing else.
// Wording, punctuation and casing outside a matched variant are left untouched.
type Normalizer struct {
	rules []compiledRewrite
}

// NewNormalizer compiles the rewrites. Variants are matched literally.
func NewNormalizer(rewrites []Rewrite) (*Normalizer, error) {
	n := &Normalizer{}
	for _, rw := range rewrites {
		if len(rw.Variants) == 0 {
			continue
		}
		quoted := make([]string, 0, len(rw.Variants))
		for _, v := range rw.Variants {
			if strings.TrimSpace(v) == "" {
				return nil, fmt.Errorf("rewrite to %q has an empty variant", rw.Canonical)
			}
			quoted = append(quoted, regexp.QuoteMeta(v))
		}
		re, err := regexp.Compile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
		if err != nil {
			return nil, fmt.Errorf("compiling rewrite to %q: %w", rw.Canonical, err)
		}
		n.rules = append(n.rules, compiledRewrite{re: re, canonical: rw.Canonical})
	}
	return n, nil
}

// MustNormalizer is NewNormalizer for static rule sets.
func MustNormalizer(rewrites []Rewrite) *Normalizer {
	n, err := NewNormalizer(rewrites)
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize returns text with every whole-word variant replaced by its canonical form.
// A nil Normalizer returns text unchanged.
func (n *Normalizer) Normalize(text string) string {
	if n == nil {
		return text
	}
	for _, rule := range n.rules {
		text = rule.apply(text)
	}
	return text
}

func (r compiledRewrite) apply(text string) string {
	matches := r.re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		if !isWordBoundary(text, m[0], m[1]) {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(r.canonical)
		last = m[1]
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// isWordBoundary reports whether text[start:end] is not glued to a letter, digit or
// underscore on either side. regexp's \b is ASCII only, which would split "leslín".
func isWordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
