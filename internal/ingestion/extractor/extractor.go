package extractor

import (
	"context"
	"strings"
)

// PageText is one page of extracted text, 1-based.
type PageText struct {
	PageNumber int
	Text       string
}

type TocItem struct {
	Title      string
	Level      int
	PageNumber int
}

// Extraction is the raw result of pulling text and metadata out of an
// uploaded file.
type Extraction struct {
	Title     string
	Author    string
	PageCount int
	Pages     []PageText
	Toc       []TocItem
	NeedsOCR  bool

	// Metadata carries the remaining info-dictionary fields (creator,
	// producer, creation date) verbatim.
	Metadata map[string]string
}

// Extractor pulls text out of a stored document file.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Extraction, error)
}

// needsOCRThreshold is the average trimmed characters per page below which
// a document is assumed to be scanned images rather than embedded text.
const needsOCRThreshold = 50

// NeedsOCR reports whether the extracted pages carry too little text to be
// usable. Documents with no pages at all are not flagged; that is an
// extraction error, not a scan.
func NeedsOCR(pages []PageText) bool {
	if len(pages) == 0 {
		return false
	}
	total := 0
	for _, p := range pages {
		total += len(strings.TrimSpace(p.Text))
	}
	return total/len(pages) < needsOCRThreshold
}
