package usecase

import (
	"strings"
	"testing"
	"fmt"
	"slices"
	"time"

	"PodcastNotifier/internal/domain"
)

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	paragraph := strings.Repeat("word ", 30) // 150 runes
	tests := []struct {
		name      string
		text      string
		limit     int
		wantParts int
	}{
		{name: "short", text: "hello", limit: 100, wantParts: 1},
		{name: "exact", text: strings.Repeat("x", 100), limit: 100, wantParts: 1},
		{name: "paragraphs", text: strings.Join([]string{paragraph, paragraph, paragraph}, "\n\n"), limit: 200, wantParts: 3},
		{name: "lines", text: strings.Repeat("a line of text\n", 40), limit: 100, wantParts: 8},
		{name: "one long line", text: strings.Repeat("é", 250), limit: 100, wantParts: 3},
		{name: "surrogate pairs", text: strings.Repeat("🎧", 100), limit: 100, wantParts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parts := SplitMessage(tt.text, tt.limit)
			if len(parts) != tt.wantParts {
				t.Fatalf("expected %d parts, got %d", tt.wantParts, len(parts))
			}
			for i, part := range parts {
				if n := MessageLength(part); n > tt.limit {
					t.Fatalf("part %d has %d UTF-16 units, limit %d", i, n, tt.limit)
				}
			}
			if len(parts) > 1 && !strings.HasPrefix(parts[0], "(1/") {
				t.Fatalf("multi-part messages need markers: %q", parts[0])
			}
		})
	}
}

func TestSplitMessageKeepsContentInOrder(t *testing.T) {
	t.Parallel()

	var paragraphs []string
	for _, w := range []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"} {
		paragraphs = append(paragraphs, strings.Repeat(w+" ", 15))
	}
	parts := SplitMessage(strings.Join(paragraphs, "\n\n"), 150)

	joined := strings.Join(parts, "\n")
	last := -1
	for _, p := range paragraphs {
		idx := strings.Index(joined, p)
		if idx < 0 || idx < last {
			t.Fatalf("paragraph %q missing or out of order", p[:5])
		}
		last = idx
	}
}

func TestFormatEpisodeMessage(t *testing.T) {
	t.Parallel()

	ep := domain.Episode{
		Title:       "Go_routines *explained*",
		PublishedAt: time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC),
		Link:        "https://example.com/ep_1",
	}
	msg := FormatEpisodeMessage("The [Show]", ep, "• point one\n• point two")

	for _, want := range []string{
		`New episode of *The \[Show]*`,
		`🎧 *Go\_routines \*explained\**`,
		"📅 2026-10-15",
		`🔗 https://example.com/ep\_1`,
		"• point one\n• point two",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message lacks %q:\n%s", want, msg)
		}
	}
}

func TestFormatDigest(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)
	msg := FormatDigest(domain.CadenceWeekly, []DigestSection{
		{Podcast: "One", Episodes: []domain.Episode{{Title: "A", PublishedAt: day}, {Title: "B", PublishedAt: day}}},
		{Podcast: "Empty"},
		{Podcast: "Two", Episodes: []domain.Episode{{Title: "C", PublishedAt: day, Link: "https://c"}}},
	})

	if !strings.HasPrefix(msg, "🎙 *Your weekly podcast digest*") {
		t.Fatalf("unexpected header:\n%s", msg)
	}
	if strings.Contains(msg, "Empty") {
		t.Fatalf("empty sections must be dropped:\n%s", msg)
	}
	if strings.Index(msg, "*One*") > strings.Index(msg, "*Two*") {
		t.Fatalf("sections out of order:\n%s", msg)
	}
	if !strings.HasSuffix(msg, "3 new episodes") {
		t.Fatalf("unexpected footer:\n%s", msg)
	}

	single := FormatDigest(domain.CadenceDaily, []DigestSection{{Podcast: "P", Episodes: []domain.Episode{{Title: "X", PublishedAt: day}}}})
	if !strings.HasSuffix(single, "1 new episode") {
		t.Fatalf("singular footer expected:\n%s", single)
	}
}

func TestMessageLengthCountsUTF16Units(t *testing.T) {
	t.Parallel()

	for text, want := range map[string]int{"": 0, "abc": 3, "é": 1, "🎧": 2, "🎧 x 🔗": 7} {
		if got := MessageLength(text); got != want {
			t.Fatalf("MessageLength(%q) = %d, want %d", text, got, want)
		}
	}
}

func TestSplitDigestBreaksBetweenEpisodes(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)
	var sections []DigestSection
	for p := 0; p < 4; p++ {
		section := DigestSection{Podcast: fmt.Sprintf("Show %d", p)}
		for i := 0; i < 50; i++ {
			section.Episodes = append(section.Episodes, domain.Episode{
				ID:          fmt.Sprintf("p%d-e%02d", p, i),
				Title:       fmt.Sprintf("Show %d episode %02d", p, i),
				PublishedAt: day,
				Link:        fmt.Sprintf("https://example.com/show-%d/episode-%02d", p, i),
			})
		}
		sections = append(sections, section)
	}

	chunks := SplitDigest(domain.CadenceWeekly, sections, DefaultMaxMessageLength)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	var ids []string
	for i, chunk := range chunks {
		if n := MessageLength(chunk.Text); n > DefaultMaxMessageLength {
			t.Fatalf("chunk %d has %d UTF-16 units", i, n)
		}
		if !strings.HasPrefix(chunk.Text, fmt.Sprintf("(%d/%d)\n", i+1, len(chunks))) {
			t.Fatalf("chunk %d lacks its marker", i)
		}
		for _, id := range chunk.EpisodeIDs {
			var p, e int
			if _, err := fmt.Sscanf(id, "p%d-e%d", &p, &e); err != nil {
				t.Fatalf("bad id %q", id)
			}
			entry := fmt.Sprintf("🎧 Show %d episode %02d (2026-10-15)\n🔗 https://example.com/show-%d/episode-%02d", p, e, p, e)
			if !strings.Contains(chunk.Text, entry) {
				t.Fatalf("chunk %d lists %s without its whole entry", i, id)
			}
		}
		ids = append(ids, chunk.EpisodeIDs...)
	}
	if len(ids) != 200 || !slices.IsSorted(ids) {
		t.Fatalf("every episode must appear once and in order, got %d ids", len(ids))
	}
	if !strings.HasSuffix(chunks[len(chunks)-1].Text, "200 new episodes") {
		t.Fatalf("footer must close the last chunk")
	}
}

func TestSplitDigestSingleChunk(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)
	sections := []DigestSection{{Podcast: "One", Episodes: []domain.Episode{{ID: "a", Title: "A", PublishedAt: day}, {ID: "b", Title: "B", PublishedAt: day}}}}

	chunks := SplitDigest(domain.CadenceDaily, sections, 0)
	if len(chunks) != 1 || chunks[0].Text != FormatDigest(domain.CadenceDaily, sections) {
		t.Fatalf("short digests stay whole: %+v", chunks)
	}
	if !slices.Equal(chunks[0].EpisodeIDs, []string{"a", "b"}) {
		t.Fatalf("unexpected ids %v", chunks[0].EpisodeIDs)
	}
}
