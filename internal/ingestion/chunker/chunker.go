package chunker

import (
	"regexp"
	"strings"

	"github.com/yungbote/pagenode-backend/internal/ingestion/extractor"
)

const (
	// DefaultTargetChars is roughly 500 tokens.
	DefaultTargetChars = 2000
	// DefaultOverlapChars is roughly 50 tokens.
	DefaultOverlapChars = 200
)

// Piece is one chunk of document text. CharStart/CharEnd index into the
// concatenated page text (each page joined with a trailing newline); Content
// is the trimmed buffer, so len(Content) can be smaller than the span.
type Piece struct {
	Index      int
	Content    string
	PageNumber *int
	CharStart  int
	CharEnd    int
	TokenCount int
}

var paragraphDelim = regexp.MustCompile(`\n\n+`)

// Chunk splits page texts into overlapping pieces respecting paragraph
// boundaries. Paragraphs are never split: one longer than targetChars
// becomes a single oversized piece. Each piece after the first starts with
// the last overlapChars of its predecessor.
func Chunk(pages []extractor.PageText, targetChars, overlapChars int) []Piece {
	if targetChars <= 0 {
		targetChars = DefaultTargetChars
	}
	if overlapChars < 0 {
		overlapChars = DefaultOverlapChars
	}
	if len(pages) == 0 {
		return nil
	}

	// Build the full text and a page offset map.
	var sb strings.Builder
	type pageOffset struct {
		offset int
		page   int
	}
	offsets := make([]pageOffset, 0, len(pages))
	for _, p := range pages {
		offsets = append(offsets, pageOffset{offset: sb.Len(), page: p.PageNumber})
		sb.WriteString(p.Text)
		sb.WriteByte('\n')
	}
	fullText := sb.String()
	if strings.TrimSpace(fullText) == "" {
		return nil
	}

	lookupPage := func(charOffset int) *int {
		var result *int
		for i := range offsets {
			if offsets[i].offset <= charOffset {
				result = &offsets[i].page
			} else {
				break
			}
		}
		return result
	}

	var pieces []Piece
	emit := func(buf string, bufStart int) {
		content := strings.TrimSpace(buf)
		if content == "" {
			return
		}
		pieces = append(pieces, Piece{
			Index:      len(pieces),
			Content:    content,
			PageNumber: lookupPage(bufStart),
			CharStart:  bufStart,
			CharEnd:    bufStart + len(buf),
			TokenCount: len(content) / 4,
		})
	}

	buf := ""
	bufStart := 0
	for _, para := range splitParagraphs(fullText) {
		if strings.TrimSpace(para) == "" {
			buf += para
			continue
		}

		if buf != "" && len(buf)+len(para) > targetChars {
			emit(buf, bufStart)
			overlap := buf
			if len(buf) > overlapChars {
				overlap = buf[len(buf)-overlapChars:]
			}
			bufStart += len(buf) - len(overlap)
			buf = overlap
		}

		buf += para
	}

	emit(buf, bufStart)
	return pieces
}

// splitParagraphs splits on runs of blank lines, folding each delimiter into
// the paragraph before it so the parts concatenate back to the input.
func splitParagraphs(text string) []string {
	delims := paragraphDelim.FindAllStringIndex(text, -1)
	if len(delims) == 0 {
		return []string{text}
	}

	var parts []string
	prev := 0
	for _, d := range delims {
		parts = append(parts, text[prev:d[1]])
		prev = d[1]
	}
	if prev < len(text) {
		parts = append(parts, text[prev:])
	}
	return parts
}
