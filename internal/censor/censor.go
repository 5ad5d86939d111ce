// Package censor masks profanity. Caption text is starred out, and narration
// audio gets bleep intervals aligned to the synthesizer's word timing marks.
package censor

import (
	"strings"
	"unicode"

	"storyreel/internal/services/speech"
)

// Interval is one audio span to bleep, in milliseconds.
type Interval struct {
	StartMS int
	EndMS   int
}

// Censor holds the active profanity vocabulary.
type Censor struct {
	terms map[string]struct{}
}

// New builds a censor over the given vocabulary. Terms are matched as whole
// words, case-insensitively.
func New(terms []string) *Censor {
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if normalized := normalizeWord(term); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return &Censor{terms: set}
}

// Empty reports whether the vocabulary has no terms.
func (c *Censor) Empty() bool {
	return len(c.terms) == 0
}

// MaskText stars out censored words for captions, keeping the first letter.
func (c *Censor) MaskText(text string) string {
	if c.Empty() || text == "" {
		return text
	}
	var out strings.Builder
	out.Grow(len(text))

	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		word := text[start:end]
		if _, hit := c.terms[normalizeWord(word)]; hit {
			runes := []rune(word)
			out.WriteRune(runes[0])
			out.WriteString(strings.Repeat("*", len(runes)-1))
		} else {
			out.WriteString(word)
		}
		start = -1
	}

	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
		out.WriteRune(r)
	}
	flush(len(text))
	return out.String()
}

// Intervals returns the audio spans to bleep, aligned to the words the
// synthesizer actually emitted. Adjacent censored words merge into one span.
func (c *Censor) Intervals(marks []speech.WordMark) []Interval {
	if c.Empty() {
		return nil
	}
	var intervals []Interval
	for _, mark := range marks {
		if _, hit := c.terms[normalizeWord(mark.Word)]; !hit {
			continue
		}
		if n := len(intervals); n > 0 && mark.StartMS <= intervals[n-1].EndMS {
			if mark.EndMS > intervals[n-1].EndMS {
				intervals[n-1].EndMS = mark.EndMS
			}
			continue
		}
		intervals = append(intervals, Interval{StartMS: mark.StartMS, EndMS: mark.EndMS})
	}
	return intervals
}

func normalizeWord(word string) string {
	trimmed := strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.ToLower(trimmed)
}
