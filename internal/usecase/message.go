package usecase

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"PodcastNotifier/internal/domain"
)

// DefaultMaxMessageLength is the Telegram limit for one text message.
const DefaultMaxMessageLength = 4096

// room left in every chunk of a split message for the "(i/n)" marker line
const markerReserve = 16

var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"`", "\\`",
	"[", `\[`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// DigestSection is one podcast block inside a digest.
type DigestSection struct {
	Podcast  string
	Episodes []domain.Episode
}

// FormatEpisodeMessage renders a single immediate notification.
func FormatEpisodeMessage(podcast string, ep domain.Episode, summary string) string {
	var b strings.Builder
	if podcast != "" {
		fmt.Fprintf(&b, "🎙 New episode of *%s*\n\n", escapeMarkdown(podcast))
	}
	fmt.Fprintf(&b, "🎧 *%s*\n", escapeMarkdown(ep.Title))
	fmt.Fprintf(&b, "📅 %s\n", ep.PublishedAt.Format("2006-01-02"))
	if ep.Link != "" {
		fmt.Fprintf(&b, "🔗 %s\n", escapeMarkdown(ep.Link))
	}
	if summary = strings.TrimSpace(summary); summary != "" {
		b.WriteString("\n")
		b.WriteString(escapeMarkdown(summary))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Chunk is one outgoing message. EpisodeIDs lists the episodes whose title
// line it carries.
type Chunk struct {
	Text       string
	EpisodeIDs []string
}

// MessageLength measures text in UTF-16 code units, the unit of the Telegram limit.
func MessageLength(text string) int {
	n := 0
	for _, r := range text {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

func digestHeader(cadence domain.Cadence) string {
	return fmt.Sprintf("🎙 *Your %s podcast digest*", cadence)
}

func digestHeading(podcast string) string {
	return "*" + escapeMarkdown(podcast) + "*"
}

func digestEntry(ep domain.Episode) string {
	entry := fmt.Sprintf("🎧 %s (%s)", escapeMarkdown(ep.Title), ep.PublishedAt.Format("2006-01-02"))
	if ep.Link != "" {
		entry += "\n🔗 " + escapeMarkdown(ep.Link)
	}
	return entry
}

func digestFooter(sections []DigestSection) string {
	total := 0
	for _, section := range sections {
		total += len(section.Episodes)
	}
	noun := "episodes"
	if total == 1 {
		noun = "episode"
	}
	return fmt.Sprintf("📊 *Total:* %d new %s", total, noun)
}

// FormatDigest renders a batched digest grouped by podcast. Episodes keep
// the order they arrive in.
func FormatDigest(cadence domain.Cadence, sections []DigestSection) string {
	var b strings.Builder
	b.WriteString(digestHeader(cadence))

	for _, section := range sections {
		if len(section.Episodes) == 0 {
			continue
		}
		b.WriteString("\n\n" + digestHeading(section.Podcast))
		for _, ep := range section.Episodes {
			b.WriteString("\n" + digestEntry(ep))
		}
	}

	b.WriteString("\n\n" + digestFooter(sections))
	return b.String()
}

// SplitDigest renders a digest as chunks of at most limit UTF-16 units.
// Chunks break between episode entries; a section continued in a later
// chunk repeats its heading. Only an entry longer than a whole chunk is cut.
func SplitDigest(cadence domain.Cadence, sections []DigestSection, limit int) []Chunk {
	if limit <= 0 {
		limit = DefaultMaxMessageLength
	}
	if whole := FormatDigest(cadence, sections); MessageLength(whole) <= limit {
		var ids []string
		for _, section := range sections {
			for _, ep := range section.Episodes {
				ids = append(ids, ep.ID)
			}
		}
		return []Chunk{{Text: whole, EpisodeIDs: ids}}
	}

	budget := limit - markerReserve
	if budget < 1 {
		budget = limit
	}

	var (
		chunks []Chunk
		cur    = digestHeader(cadence)
		ids    []string
	)
	flush := func() {
		if cur != "" {
			chunks = append(chunks, Chunk{Text: cur, EpisodeIDs: ids})
		}
		cur, ids = "", nil
	}
	fits := func(sep, piece string) bool {
		if cur == "" {
			return MessageLength(piece) <= budget
		}
		return MessageLength(cur)+MessageLength(sep)+MessageLength(piece) <= budget
	}
	add := func(sep, piece string) {
		if cur == "" {
			cur = piece
			return
		}
		cur += sep + piece
	}

	for _, section := range sections {
		if len(section.Episodes) == 0 {
			continue
		}
		heading := digestHeading(section.Podcast)
		for i, ep := range section.Episodes {
			entry := digestEntry(ep)
			switch {
			case i == 0 && fits("\n\n", heading+"\n"+entry):
				add("\n\n", heading+"\n"+entry)
				ids = append(ids, ep.ID)
			case i > 0 && fits("\n", entry):
				add("\n", entry)
				ids = append(ids, ep.ID)
			default:
				flush()
				block := heading + "\n" + entry
				if i > 0 {
					block = heading + " (cont.)\n" + entry
				}
				for j, piece := range splitOn(block, budget, []string{"\n"}) {
					if j > 0 {
						flush()
					}
					cur = piece
					if j == 0 {
						ids = append(ids, ep.ID)
					}
				}
			}
		}
	}

	footer := digestFooter(sections)
	if !fits("\n\n", footer) {
		flush()
	}
	add("\n\n", footer)
	flush()

	if len(chunks) > 1 {
		for i := range chunks {
			chunks[i].Text = fmt.Sprintf("(%d/%d)\n%s", i+1, len(chunks), chunks[i].Text)
		}
	}
	return chunks
}

// SplitMessage breaks text into chunks of at most limit UTF-16 units,
// preferring paragraph then line boundaries. Multi-chunk output is prefixed
// with "(i/n)".
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxMessageLength
	}
	if MessageLength(text) <= limit {
		return []string{text}
	}

	body := limit - markerReserve
	if body < 1 {
		body = limit
	}

	chunks := splitOn(text, body, []string{"\n\n", "\n"})
	if len(chunks) == 1 {
		return chunks
	}
	for i := range chunks {
		chunks[i] = fmt.Sprintf("(%d/%d)\n%s", i+1, len(chunks), chunks[i])
	}
	return chunks
}

func splitOn(text string, max int, seps []string) []string {
	if MessageLength(text) <= max {
		return []string{text}
	}
	if len(seps) == 0 {
		return splitUnits(text, max)
	}

	sep := seps[0]
	var (
		out []string
		cur string
	)
	for _, part := range strings.Split(text, sep) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if MessageLength(part) > max {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			out = append(out, splitOn(part, max, seps[1:])...)
			continue
		}
		switch {
		case cur == "":
			cur = part
		case MessageLength(cur)+MessageLength(sep)+MessageLength(part) <= max:
			cur += sep + part
		default:
			out = append(out, cur)
			cur = part
		}
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// splitUnits cuts text at rune boundaries so no piece exceeds max UTF-16 units.
func splitUnits(text string, max int) []string {
	var (
		out  []string
		b    strings.Builder
		size int
	)
	for _, r := range text {
		n := MessageLength(string(r))
		if size+n > max && b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
			size = 0
		}
		b.WriteRune(r)
		size += n
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
