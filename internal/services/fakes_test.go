package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/pagenode-backend/internal/graph"
	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// --- chunk repo fake ---

type fakeChunkRepo struct {
	embedded []*types.Chunk
}

func (f *fakeChunkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) ([]*types.Chunk, error) {
	return chunks, nil
}

func (f *fakeChunkRepo) ListByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID, offset, limit int) ([]*types.Chunk, int64, error) {
	return f.embedded, int64(len(f.embedded)), nil
}

func (f *fakeChunkRepo) GetEmbeddedByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID, limit int) ([]*types.Chunk, error) {
	if limit > len(f.embedded) {
		limit = len(f.embedded)
	}
	return f.embedded[:limit], nil
}

func (f *fakeChunkRepo) MarkEmbedded(ctx context.Context, tx *gorm.DB, docID uuid.UUID) error {
	return nil
}

func (f *fakeChunkRepo) CountByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) (int64, error) {
	return int64(len(f.embedded)), nil
}

func (f *fakeChunkRepo) DeleteByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) error {
	return nil
}

// --- document repo fake ---

type fakeDocRepo struct {
	conceptCount     int
	conceptCountSets int
}

func (f *fakeDocRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error) {
	return doc, nil
}

func (f *fakeDocRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	return nil, nil
}

func (f *fakeDocRepo) GetByHash(ctx context.Context, tx *gorm.DB, fileHash string) (*types.Document, error) {
	return nil, nil
}

func (f *fakeDocRepo) List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]*types.Document, int64, error) {
	return nil, 0, nil
}

func (f *fakeDocRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	return nil
}

func (f *fakeDocRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, to types.DocumentStatus) error {
	return nil
}

func (f *fakeDocRepo) SetConceptCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, count int) error {
	f.conceptCount = count
	f.conceptCountSets++
	return nil
}

func (f *fakeDocRepo) FindByStatus(ctx context.Context, tx *gorm.DB, statuses []types.DocumentStatus) ([]*types.Document, error) {
	return nil, nil
}

func (f *fakeDocRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	return true, nil
}

// --- flashcard repo fake ---

type fakeCardRepo struct {
	mu    sync.Mutex
	cards map[uuid.UUID]*types.Flashcard

	reviewUpdates int
}

func newFakeCardRepo() *fakeCardRepo {
	return &fakeCardRepo{cards: make(map[uuid.UUID]*types.Flashcard)}
}

func (f *fakeCardRepo) Create(ctx context.Context, tx *gorm.DB, card *types.Flashcard) (*types.Flashcard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	f.cards[card.ID] = card
	return card, nil
}

func (f *fakeCardRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Flashcard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	card, ok := f.cards[id]
	if !ok {
		return nil, nil
	}
	clone := *card
	return &clone, nil
}

func (f *fakeCardRepo) List(ctx context.Context, tx *gorm.DB, docID *uuid.UUID, offset, limit int) ([]*types.Flashcard, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Flashcard
	for _, card := range f.cards {
		if docID != nil && card.DocumentID != *docID {
			continue
		}
		out = append(out, card)
	}
	return out, int64(len(out)), nil
}

func (f *fakeCardRepo) ListDue(ctx context.Context, tx *gorm.DB, docID *uuid.UUID, limit int) ([]*types.Flashcard, error) {
	rows, _, err := f.List(ctx, tx, docID, 0, limit)
	return rows, err
}

func (f *fakeCardRepo) UpdateReview(ctx context.Context, tx *gorm.DB, id uuid.UUID, repetitions, interval int, difficulty float64, nextReview time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	card, ok := f.cards[id]
	if !ok {
		return fmt.Errorf("card %s not found", id)
	}
	card.Repetitions = repetitions
	card.Interval = interval
	card.Difficulty = difficulty
	card.NextReview = &nextReview
	f.reviewUpdates++
	return nil
}

func (f *fakeCardRepo) UpdateContent(ctx context.Context, tx *gorm.DB, id uuid.UUID, question, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	card, ok := f.cards[id]
	if !ok {
		return fmt.Errorf("card %s not found", id)
	}
	card.Question = question
	card.Answer = answer
	return nil
}

func (f *fakeCardRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cards[id]; !ok {
		return false, nil
	}
	delete(f.cards, id)
	return true, nil
}

func (f *fakeCardRepo) Stats(ctx context.Context, tx *gorm.DB) (*types.FlashcardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.FlashcardStats{TotalCards: int64(len(f.cards))}, nil
}

// --- LLM fake ---

type llmReply struct {
	result map[string]any
	err    error
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []llmReply
	calls   int
}

func (f *fakeLLM) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = []float32{0, 0, 0}
	}
	return out, nil
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user string, maxTokens int) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.replies) {
		f.calls++
		return map[string]any{}, nil
	}
	reply := f.replies[f.calls]
	f.calls++
	return reply.result, reply.err
}

// --- graph fake ---

type graphEdge struct {
	fromID, toID, relType string
	weight                float64
}

type fakeGraph struct {
	mu sync.Mutex

	ids           map[string]string
	extractedFrom []uuid.UUID
	edges         []graphEdge

	masteryChunks []uuid.UUID
	masteryDeltas []float64
	masteryErr    error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{ids: make(map[string]string)}
}

func (g *fakeGraph) EnsureDocumentNode(ctx context.Context, docID uuid.UUID, title, author string) error {
	return nil
}

func (g *fakeGraph) UpsertConceptByName(ctx context.Context, name, description, category string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.ids[name]; ok {
		return id, nil
	}
	id := uuid.New().String()
	g.ids[name] = id
	return id, nil
}

func (g *fakeGraph) AddExtractedFrom(ctx context.Context, conceptID string, docID uuid.UUID, chunkID uuid.UUID, confidence float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.extractedFrom = append(g.extractedFrom, chunkID)
	return nil
}

func (g *fakeGraph) AddConceptEdge(ctx context.Context, fromID, toID, relType string, weight float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = append(g.edges, graphEdge{fromID: fromID, toID: toID, relType: relType, weight: weight})
	return nil
}

func (g *fakeGraph) ApplyMasteryFromChunk(ctx context.Context, chunkID uuid.UUID, delta float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.masteryErr != nil {
		return g.masteryErr
	}
	g.masteryChunks = append(g.masteryChunks, chunkID)
	g.masteryDeltas = append(g.masteryDeltas, delta)
	return nil
}

func (g *fakeGraph) ConceptsForDocument(ctx context.Context, docID uuid.UUID) ([]graph.Concept, error) {
	return nil, nil
}

func (g *fakeGraph) Subgraph(ctx context.Context, docID uuid.UUID) ([]graph.Concept, []graph.Edge, error) {
	return nil, nil, nil
}

func (g *fakeGraph) FullGraph(ctx context.Context) ([]graph.Concept, []graph.Edge, error) {
	return nil, nil, nil
}

func (g *fakeGraph) ListConcepts(ctx context.Context, category string, offset, limit int) ([]graph.Concept, error) {
	return nil, nil
}

func (g *fakeGraph) GetConcept(ctx context.Context, conceptID string) (*graph.Concept, error) {
	return nil, nil
}

func (g *fakeGraph) Neighbors(ctx context.Context, conceptID string) ([]graph.Concept, []graph.Edge, error) {
	return nil, nil, nil
}

func (g *fakeGraph) DeleteConcept(ctx context.Context, conceptID string) (bool, error) {
	return false, nil
}

func (g *fakeGraph) DeleteConceptEdge(ctx context.Context, fromID, toID, relType string) error {
	return nil
}

func (g *fakeGraph) DeleteDocumentGraph(ctx context.Context, docID uuid.UUID) error {
	return nil
}
