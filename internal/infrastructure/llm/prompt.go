package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"PodcastNotifier/internal/domain"
)

// DefaultMaxTranscriptChars caps how much transcript reaches a model.
const DefaultMaxTranscriptChars = 8000

const defaultSystemPrompt = "You summarize podcast episodes for busy listeners."

// TruncateTranscript keeps at most max runes of text.
func TruncateTranscript(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max])
}

// BuildPrompt renders the user prompt for a single episode summary.
func BuildPrompt(req domain.SummaryRequest, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxTranscriptChars
	}

	published := "unknown date"
	if !req.PublishedAt.IsZero() {
		published = req.PublishedAt.Format("2006-01-02")
	}

	var b strings.Builder
	b.WriteString("Summarize this podcast episode in exactly 3 short bullet points. ")
	b.WriteString("Focus on the main ideas a listener would care about.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", strings.TrimSpace(req.Title))
	fmt.Fprintf(&b, "Published: %s\n\n", published)
	b.WriteString("Transcript:\n")
	b.WriteString(TruncateTranscript(strings.TrimSpace(req.Transcript), maxChars))
	return b.String()
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultSystemPrompt
	}
	return prompt
}

func cleanSummary(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```markdown")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
