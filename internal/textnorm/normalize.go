// Package textnorm provides text normalization and safe truncation used by
// every verification layer. All functions are pure.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// foldCaser is a package-level Unicode case folder; creating a caser per
// call is measurably slower.
var foldCaser = cases.Fold()

// mojibake maps common UTF-8-decoded-as-Windows-1252 artifacts back to the
// intended characters. Sequences are spelled with escapes because several
// contain unprintable bytes. Longer sequences come first; the bare
// "â€" fragment runs last so it cannot shadow the specific ones.
var mojibake = []struct{ bad, good string }{
	{"â€™", "'"},      // right single quote
	{"â€˜", "'"},      // left single quote
	{"â€œ", `"`},      // left double quote
	{"â€", `"`},      // right double quote
	{"â€“", "-"},      // en dash
	{"â€", "-"},      // em dash
	{"â€¦", "..."},    // ellipsis
	{"Ã©", "é"},       // e acute
	{"Ã¨", "è"},       // e grave
	{"Ã¼", "ü"},       // u umlaut
	{"Ã±", "ñ"},       // n tilde
	{"Â ", " "},            // non-breaking space
	{"ï»¿", ""},       // byte order mark
	{"�", ""},                   // replacement rune
	{"â€", `"`},            // bare quote fragment
}

// Normalize collapses whitespace, applies NFC, and repairs common encoding
// artifacts. The result preserves case and is safe to persist for display,
// though callers of this package only use it for comparison.
func Normalize(s string) string {
	s = RepairEncoding(s)
	s = norm.NFC.String(s)
	return collapseSpace(s)
}

// Fold returns the canonical case-folded comparison form: repaired,
// NFC-normalized, case-folded, whitespace-collapsed. Comparison use only,
// never the persisted value.
func Fold(s string) string {
	return foldCaser.String(Normalize(s))
}

// RepairEncoding fixes well-known mojibake sequences and strips control
// characters and replacement runes.
func RepairEncoding(s string) string {
	for _, m := range mojibake {
		s = strings.ReplaceAll(s, m.bad, m.good)
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseSpace replaces runs of whitespace (including newlines and tabs)
// with a single space and trims the ends.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sentenceEnders terminate a complete sentence.
const sentenceEnders = ".!?"

// clauseBreaks are acceptable truncation points short of a full sentence.
const clauseBreaks = ";:,"

// TruncateSafe truncates s to at most maxLen runes at a sentence or clause
// boundary, never mid-word. When the cut lands short of a sentence end, an
// ellipsis marker is appended (counted within maxLen).
func TruncateSafe(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}

	window := string(runes[:maxLen])

	// Prefer the last complete sentence within the window.
	if idx := lastIndexAny(window, sentenceEnders); idx >= 0 {
		return strings.TrimSpace(window[:idx+1])
	}

	// Next best: a clause boundary, marked as incomplete.
	budget := string(runes[:maxLen-3])
	if idx := lastIndexAny(budget, clauseBreaks); idx >= 0 {
		return strings.TrimSpace(budget[:idx]) + "..."
	}

	// Fall back to the last word boundary.
	if idx := strings.LastIndexFunc(budget, unicode.IsSpace); idx > 0 {
		return strings.TrimSpace(budget[:idx]) + "..."
	}
	return budget + "..."
}

// LooksTruncated reports whether text appears cut off mid-word or
// mid-sentence: long enough to be prose, no terminal punctuation, and
// ending in a letter or a dangling connective.
func LooksTruncated(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	last := lastRune(s)
	if strings.ContainsRune(sentenceEnders+`)"'`, last) {
		return false
	}
	// Short values (names, titles) legitimately lack punctuation.
	if !strings.ContainsRune(s, ' ') || len(s) < 40 {
		return false
	}
	words := strings.Fields(s)
	tail := strings.ToLower(strings.Trim(words[len(words)-1], `,;:"'`))
	for _, w := range []string{"and", "or", "the", "a", "an", "to", "of", "with", "for", "in"} {
		if tail == w {
			return true
		}
	}
	return unicode.IsLetter(last) || last == ',' || last == ';' || last == ':'
}

func lastIndexAny(s, chars string) int {
	best := -1
	for _, c := range chars {
		if idx := strings.LastIndexByte(s, byte(c)); idx > best {
			best = idx
		}
	}
	return best
}

func lastRune(s string) rune {
	var r rune
	for _, rr := range s {
		r = rr
	}
	return r
}
