// Package merge combines per-page outputs from several extraction backends.
package merge

import (
	"strings"
	"unicode/utf8"
)

// PageSeparator joins non-empty pages in Join.
const PageSeparator = "\n\n"

// Merge picks, for every page index, the longest candidate whose rune length
// exceeds threshold. Sequences are given in priority order; ties go to the
// earliest. Pages with no qualifying candidate are empty. The result has the
// length of the longest input.
func Merge(threshold int, seqs ...[]string) []string {
	n := 0
	for _, s := range seqs {
		if len(s) > n {
			n = len(s)
		}
	}

	out := make([]string, n)
	for i := 0; i < n; i++ {
		best, bestLen := "", -1
		for _, s := range seqs {
			if i >= len(s) {
				continue
			}
			l := utf8.RuneCountInString(s[i])
			if l > threshold && l > bestLen {
				best, bestLen = s[i], l
			}
		}
		out[i] = best
	}
	return out
}

// Join concatenates the non-empty pages.
func Join(pages []string) string {
	var b strings.Builder
	for _, p := range pages {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(PageSeparator)
		}
		b.WriteString(p)
	}
	return b.String()
}

// Filled counts pages with non-blank text.
func Filled(pages []string) int {
	n := 0
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}
