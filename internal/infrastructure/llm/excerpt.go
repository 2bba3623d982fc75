package llm

import (
	"context"
	"strings"
	"unicode"

	"PodcastNotifier/internal/domain"
	"PodcastNotifier/internal/ports"
)

const excerptSentences = 3

// ExcerptSummarizer builds a summary from the opening sentences of the
// transcript. It needs no network access and backs deployments without a model key.
type ExcerptSummarizer struct {
	maxChars int
}

var _ ports.Summarizer = (*ExcerptSummarizer)(nil)

// NewExcerptSummarizer caps each bullet at maxChars/excerptSentences runes.
func NewExcerptSummarizer(maxChars int) *ExcerptSummarizer {
	if maxChars <= 0 {
		maxChars = 600
	}
	return &ExcerptSummarizer{maxChars: maxChars}
}

// Name identifies the provider inside the registry.
func (s *ExcerptSummarizer) Name() string {
	return "excerpt"
}

// Summarize returns up to three bullets taken from the transcript.
func (s *ExcerptSummarizer) Summarize(_ context.Context, req domain.SummaryRequest) (string, error) {
	sentences := splitSentences(req.Transcript, excerptSentences)
	if len(sentences) == 0 {
		return "", domain.ErrEmptyTranscript
	}

	perBullet := s.maxChars / excerptSentences
	lines := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		lines = append(lines, "• "+TruncateTranscript(sentence, perBullet))
	}
	return strings.Join(lines, "\n"), nil
}

func splitSentences(text string, limit int) []string {
	text = strings.Join(strings.Fields(text), " ")
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i, r := range runes {
		if len(out) == limit {
			break
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start : i+1])); sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	if len(out) < limit && start < len(runes) {
		if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
			out = append(out, tail)
		}
	}
	return out
}
