package extractor

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/pagenode-backend/internal/logger"
)

// Poppler extracts PDF text with pdftotext, metadata with pdfinfo and the
// outline with pdftohtml. All three binaries ship in poppler-utils.
type Poppler struct {
	log            *logger.Logger
	pdftotextPath  string
	pdfinfoPath    string
	pdftohtmlPath  string
	defaultTimeout time.Duration
}

func NewPoppler(log *logger.Logger) *Poppler {
	return &Poppler{
		log:            log.With("service", "PopplerExtractor"),
		pdftotextPath:  "pdftotext",
		pdfinfoPath:    "pdfinfo",
		pdftohtmlPath:  "pdftohtml",
		defaultTimeout: 5 * time.Minute,
	}
}

// AssertReady fails fast when the poppler binaries are missing from PATH.
func (p *Poppler) AssertReady(ctx context.Context) error {
	for _, name := range []string{p.pdftotextPath, p.pdfinfoPath, p.pdftohtmlPath} {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", name, err)
		}
	}
	return nil
}

func (p *Poppler) Extract(ctx context.Context, path string) (*Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, p.defaultTimeout)
	defer cancel()

	pages, err := p.extractPages(ctx, path)
	if err != nil {
		return nil, err
	}

	ext := &Extraction{
		Pages:     pages,
		PageCount: len(pages),
		NeedsOCR:  NeedsOCR(pages),
	}

	// Metadata is best-effort; a PDF without an info dictionary still
	// ingests.
	if info, infoErr := p.extractInfo(ctx, path); infoErr != nil {
		p.log.Warn("pdfinfo failed (continuing without metadata)", "path", path, "error", infoErr)
	} else {
		ext.Title = info.title
		ext.Author = info.author
		if info.pages > 0 {
			ext.PageCount = info.pages
		}
		ext.Metadata = info.extra
	}

	// The outline is best-effort too; many PDFs simply have none.
	if toc, tocErr := p.extractOutline(ctx, path); tocErr != nil {
		p.log.Warn("pdftohtml failed (continuing without toc)", "path", path, "error", tocErr)
	} else {
		ext.Toc = toc
	}

	return ext, nil
}

// extractPages runs pdftotext -layout and splits the output on the form
// feeds pdftotext emits between pages.
func (p *Poppler) extractPages(ctx context.Context, path string) ([]PageText, error) {
	cmd := exec.CommandContext(ctx, p.pdftotextPath, "-layout", "-enc", "UTF-8", path, "-")
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return nil, fmt.Errorf("pdftotext failed: %w; stderr=%s", err, truncate(string(ee.Stderr), 512))
		}
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}

	raw := strings.Split(string(out), "\f")
	// pdftotext terminates the last page with \f, leaving a trailing empty
	// element.
	if n := len(raw); n > 0 && strings.TrimSpace(raw[n-1]) == "" {
		raw = raw[:n-1]
	}

	pages := make([]PageText, 0, len(raw))
	for i, text := range raw {
		pages = append(pages, PageText{PageNumber: i + 1, Text: text})
	}
	return pages, nil
}

type pdfInfo struct {
	title  string
	author string
	pages  int
	extra  map[string]string
}

func (p *Poppler) extractInfo(ctx context.Context, path string) (pdfInfo, error) {
	cmd := exec.CommandContext(ctx, p.pdfinfoPath, path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return pdfInfo{}, fmt.Errorf("pdfinfo failed: %w; out=%s", err, truncate(string(out), 512))
	}

	var info pdfInfo
	for _, line := range strings.Split(string(out), "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Title":
			info.title = value
		case "Author":
			info.author = value
		case "Pages":
			if n, convErr := strconv.Atoi(value); convErr == nil {
				info.pages = n
			}
		case "Creator", "Producer", "CreationDate", "ModDate":
			if value != "" {
				if info.extra == nil {
					info.extra = map[string]string{}
				}
				info.extra[strings.TrimSpace(key)] = value
			}
		}
	}
	return info, nil
}

// extractOutline pulls the document outline out of pdftohtml's XML output.
// The page range is limited to page 1: the outline block is emitted before
// any page content, so the text of the remaining pages is wasted work.
func (p *Poppler) extractOutline(ctx context.Context, path string) ([]TocItem, error) {
	cmd := exec.CommandContext(ctx, p.pdftohtmlPath, "-q", "-i", "-enc", "UTF-8", "-xml", "-f", "1", "-l", "1", "-stdout", path)
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return nil, fmt.Errorf("pdftohtml failed: %w; stderr=%s", err, truncate(string(ee.Stderr), 512))
		}
		return nil, fmt.Errorf("pdftohtml failed: %w", err)
	}
	return parseOutline(out), nil
}

// parseOutline walks the <outline> tree in pdftohtml XML. Nesting depth of
// the <outline> elements is the entry level, 1-based; document order is
// preserved.
func parseOutline(raw []byte) []TocItem {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false

	var items []TocItem
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "outline":
				depth++
			case "item":
				if depth == 0 {
					continue
				}
				page := 0
				for _, attr := range el.Attr {
					if attr.Name.Local == "page" {
						if n, convErr := strconv.Atoi(attr.Value); convErr == nil {
							page = n
						}
					}
				}
				var title string
				if err := dec.DecodeElement(&title, &el); err != nil {
					continue
				}
				title = strings.TrimSpace(title)
				if title == "" {
					continue
				}
				items = append(items, TocItem{Title: title, Level: depth, PageNumber: page})
			}
		case xml.EndElement:
			if el.Name.Local == "outline" {
				depth--
			}
		}
	}
	return items
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
