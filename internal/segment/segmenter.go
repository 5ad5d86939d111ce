package segment

import (
	"math"
	"regexp"
	"strings"
)

// Config bounds each produced part.
type Config struct {
	WordsPerMinute     int
	MaxDurationSeconds int
}

// Part is one duration-bounded slice of the input text.
type Part struct {
	Index     int // 1-based
	Total     int
	Body      string
	WordCount int
}

// Segmenter splits text into duration-bounded parts without ever cutting a
// sentence. Splitting is deterministic: the same input and config always
// produce the same parts.
type Segmenter struct {
	cfg Config
}

var sentenceBoundary = regexp.MustCompile(`(?s)(.*?[.!?])\s+`)

// New returns a Segmenter for the supplied bounds.
func New(cfg Config) *Segmenter {
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = 150
	}
	if cfg.MaxDurationSeconds <= 0 {
		cfg.MaxDurationSeconds = 60
	}
	return &Segmenter{cfg: cfg}
}

// EstimateDuration returns the narration estimate in whole seconds for the
// supplied text at the configured speaking rate.
func (s *Segmenter) EstimateDuration(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / float64(s.cfg.WordsPerMinute) * 60))
}

// Split produces the ordered parts for the input text. Sentences are
// accumulated greedily while the running word count stays within the word
// budget derived from MaxDurationSeconds. A single sentence that exceeds the
// budget on its own becomes its own oversized part; sentences are never cut.
// Empty input yields no parts.
func (s *Segmenter) Split(text string) []Part {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	maxWords := float64(s.cfg.MaxDurationSeconds) / 60 * float64(s.cfg.WordsPerMinute)

	var (
		parts     []Part
		current   []string
		wordCount int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		parts = append(parts, Part{
			Body:      strings.Join(current, " "),
			WordCount: wordCount,
		})
		current = nil
		wordCount = 0
	}

	for _, sentence := range sentences {
		words := len(strings.Fields(sentence))
		if float64(wordCount+words) > maxWords && len(current) > 0 {
			flush()
		}
		current = append(current, sentence)
		wordCount += words
	}
	flush()

	for i := range parts {
		parts[i].Index = i + 1
		parts[i].Total = len(parts)
	}
	return parts
}

// splitSentences breaks text on `.`, `!`, or `?` followed by whitespace.
// The trailing fragment (no terminator) is kept as a final sentence.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	rest := text
	for {
		loc := sentenceBoundary.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		sentence := strings.TrimSpace(rest[loc[2]:loc[3]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		rest = rest[loc[1]:]
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
