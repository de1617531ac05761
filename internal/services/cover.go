package services

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/color"
	"math/rand"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"golang.org/x/image/font"

	"github.com/yungbote/pagenode-backend/internal/logger"
)

const (
	coverWidth  = 400
	coverHeight = 560
)

var coverPalette = map[string]color.NRGBA{
	"charcoal": {R: 0x2b, G: 0x2b, B: 0x2e, A: 0xff},
	"red":      {R: 0x8c, G: 0x2f, B: 0x2a, A: 0xff},
	"blue":     {R: 0x2a, G: 0x4d, B: 0x7a, A: 0xff},
	"green":    {R: 0x2f, G: 0x5e, B: 0x43, A: 0xff},
	"umber":    {R: 0x6e, G: 0x4a, B: 0x2e, A: 0xff},
	"navy":     {R: 0x1d, G: 0x2a, B: 0x44, A: 0xff},
}

var coverTextures = map[string]struct{}{
	"plain":   {},
	"leather": {},
	"cloth":   {},
}

func ValidCoverColor(name string) bool {
	_, ok := coverPalette[name]
	return ok
}

func ValidCoverTexture(name string) bool {
	_, ok := coverTextures[name]
	return ok
}

// CoverService renders a deterministic cover PNG for a document from its
// cover color, texture and title.
type CoverService interface {
	Render(docID uuid.UUID, title, coverColor, coverTexture string) ([]byte, error)
}

type coverService struct {
	log      *logger.Logger
	fontFace font.Face
}

// NewCoverService loads the optional title font from COVER_FONT. Without a
// font the cover is rendered with color and texture only.
func NewCoverService(baseLog *logger.Logger) CoverService {
	svc := &coverService{log: baseLog.With("service", "Cover")}

	fontPath := strings.TrimSpace(os.Getenv("COVER_FONT"))
	if fontPath == "" {
		return svc
	}
	face, err := loadFontFace(fontPath, 96)
	if err != nil {
		svc.log.Warn("could not load cover font, rendering without initials", "path", fontPath, "error", err)
		return svc
	}
	svc.fontFace = face
	return svc
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}

func (s *coverService) Render(docID uuid.UUID, title, coverColor, coverTexture string) ([]byte, error) {
	base, ok := coverPalette[coverColor]
	if !ok {
		base = coverPalette["charcoal"]
	}

	dc := gg.NewContext(coverWidth, coverHeight)
	dc.SetColor(base)
	dc.Clear()

	// Texture noise is seeded from the document id so re-renders are
	// byte-stable.
	rng := rand.New(rand.NewSource(coverSeed(docID)))
	switch coverTexture {
	case "leather":
		drawLeather(dc, base, rng)
	case "cloth":
		drawCloth(dc, base)
	}

	// Spine band.
	dc.SetColor(shade(base, 0.7))
	dc.DrawRectangle(0, 0, 24, coverHeight)
	dc.Fill()

	if s.fontFace != nil {
		dc.SetFontFace(s.fontFace)
		initials := titleInitials(title)
		tw, th := dc.MeasureString(initials)
		dc.SetColor(color.White)
		dc.DrawString(initials, float64(coverWidth)/2-tw/2, float64(coverHeight)/2+th/2)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode cover PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func drawLeather(dc *gg.Context, base color.NRGBA, rng *rand.Rand) {
	dark := shade(base, 0.85)
	for i := 0; i < 1200; i++ {
		x := rng.Float64() * coverWidth
		y := rng.Float64() * coverHeight
		r := 0.5 + rng.Float64()*1.5
		dc.SetColor(dark)
		dc.DrawCircle(x, y, r)
		dc.Fill()
	}
}

func drawCloth(dc *gg.Context, base color.NRGBA) {
	weave := shade(base, 0.9)
	dc.SetColor(weave)
	dc.SetLineWidth(1)
	for x := 0.0; x < coverWidth; x += 6 {
		dc.DrawLine(x, 0, x, coverHeight)
		dc.Stroke()
	}
	for y := 0.0; y < coverHeight; y += 6 {
		dc.DrawLine(0, y, coverWidth, y)
		dc.Stroke()
	}
}

func shade(c color.NRGBA, factor float64) color.NRGBA {
	return color.NRGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: c.A,
	}
}

func coverSeed(docID uuid.UUID) int64 {
	b := docID[:]
	return int64(binary.BigEndian.Uint64(b[:8]) & 0x7fffffffffffffff)
}

func titleInitials(title string) string {
	words := strings.Fields(title)
	var sb strings.Builder
	for _, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		sb.WriteString(strings.ToUpper(string(r[0])))
		if sb.Len() >= 2 {
			break
		}
	}
	if sb.Len() == 0 {
		return "?"
	}
	return sb.String()
}
