package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/pagenode-backend/internal/clients/openai"
	"github.com/yungbote/pagenode-backend/internal/graph"
	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/repos"
)

const (
	conceptMaxChunks    = 20
	conceptMinChunkSize = 100
	conceptMaxTokens    = 512
	extractedConfidence = 0.8
	promptPassageLimit  = 3000
)

var conceptCategories = map[string]struct{}{
	"programming": {},
	"mathematics": {},
	"science":     {},
	"engineering": {},
	"general":     {},
}

const conceptSystemPrompt = `You are a knowledge extraction engine. Given a text passage from a document, identify key concepts and their relationships. Respond ONLY with valid JSON in exactly this structure:
{"concepts": [{"name": "string", "category": "string", "description": "string"}], "relationships": [{"from": "concept name", "to": "concept name", "type": "relates_to"}]}
Rules:
- Extract at most 5 concepts per passage.
- Keep concept names concise (2-5 words).
- Categories must be one of: programming, mathematics, science, engineering, general.
- Relationship types must be: relates_to or prerequisite_of.
- 'from' and 'to' in relationships must exactly match names in the concepts list.
- If no clear concepts are found, return empty arrays.`

// ConceptExtractionService mines concepts out of a document's embedded
// chunks and writes them to the concept graph.
type ConceptExtractionService interface {
	// ExtractForDocument processes up to conceptMaxChunks chunks. Per-chunk
	// LLM failures are logged and skipped; an unavailable backend stops the
	// loop. Returns the number of concept links written.
	ExtractForDocument(ctx context.Context, docID uuid.UUID, title, author string) (int, error)
}

type conceptExtractionService struct {
	docs   repos.DocumentRepo
	chunks repos.ChunkRepo
	llm    openai.Client
	graph  graph.Service
	log    *logger.Logger
}

func NewConceptExtractionService(
	docs repos.DocumentRepo,
	chunks repos.ChunkRepo,
	llm openai.Client,
	graphSvc graph.Service,
	baseLog *logger.Logger,
) ConceptExtractionService {
	return &conceptExtractionService{
		docs:   docs,
		chunks: chunks,
		llm:    llm,
		graph:  graphSvc,
		log:    baseLog.With("service", "ConceptExtraction"),
	}
}

func conceptUserPrompt(chunkText, docTitle string) string {
	if len(chunkText) > promptPassageLimit {
		chunkText = chunkText[:promptPassageLimit]
	}
	return fmt.Sprintf("Extract concepts from this passage from %q:\n\n%s", docTitle, chunkText)
}

func (s *conceptExtractionService) ExtractForDocument(ctx context.Context, docID uuid.UUID, title, author string) (int, error) {
	if s.llm == nil || s.graph == nil {
		return 0, nil
	}

	rows, err := s.chunks.GetEmbeddedByDocument(ctx, nil, docID, conceptMaxChunks)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		s.log.Info("no embedded chunks found", "document_id", docID.String())
		return 0, nil
	}

	// The document node must exist before EXTRACTED_FROM edges point at it.
	if err := s.graph.EnsureDocumentNode(ctx, docID, title, author); err != nil {
		return 0, err
	}

	total := 0
	for _, chunk := range rows {
		if len(chunk.Content) < conceptMinChunkSize {
			continue
		}

		result, err := s.llm.GenerateJSON(ctx, conceptSystemPrompt, conceptUserPrompt(chunk.Content, title), conceptMaxTokens)
		if err != nil {
			if errors.Is(err, openai.ErrUnavailable) {
				s.log.Warn("LLM unavailable, stopping concept extraction", "document_id", docID.String())
				break
			}
			s.log.Warn("LLM call failed for chunk", "chunk_id", chunk.ID.String(), "error", err)
			continue
		}

		nameToID := make(map[string]string)

		for _, raw := range anySlice(result["concepts"]) {
			cdata, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name := strings.TrimSpace(stringField(cdata, "name"))
			if name == "" {
				continue
			}
			category := strings.ToLower(strings.TrimSpace(stringField(cdata, "category")))
			if _, valid := conceptCategories[category]; !valid {
				category = "general"
			}
			description := strings.TrimSpace(stringField(cdata, "description"))

			conceptID, err := s.graph.UpsertConceptByName(ctx, name, description, category)
			if err != nil {
				s.log.Warn("graph write failed for concept", "name", name, "error", err)
				continue
			}
			nameToID[name] = conceptID
			if err := s.graph.AddExtractedFrom(ctx, conceptID, docID, chunk.ID, extractedConfidence); err != nil {
				s.log.Warn("graph edge write failed", "name", name, "error", err)
				continue
			}
			total++
		}

		for _, raw := range anySlice(result["relationships"]) {
			rel, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			fromName := strings.TrimSpace(stringField(rel, "from"))
			toName := strings.TrimSpace(stringField(rel, "to"))
			relType := strings.TrimSpace(stringField(rel, "type"))
			if relType == "" {
				relType = graph.EdgeRelatesTo
			}
			if fromName == "" || toName == "" {
				continue
			}
			fromID, okFrom := nameToID[fromName]
			toID, okTo := nameToID[toName]
			if !okFrom || !okTo {
				continue
			}
			if err := s.graph.AddConceptEdge(ctx, fromID, toID, relType, 1.0); err != nil {
				s.log.Warn("graph edge write failed", "from", fromName, "to", toName, "error", err)
			}
		}
	}

	if total > 0 {
		if err := s.docs.SetConceptCount(ctx, nil, docID, total); err != nil {
			s.log.Warn("persisting concept count failed", "document_id", docID.String(), "error", err)
		}
	}
	return total, nil
}

func anySlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func floatField(m map[string]any, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}
