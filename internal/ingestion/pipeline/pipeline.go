package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/pagenode-backend/internal/clients/openai"
	"github.com/yungbote/pagenode-backend/internal/clients/qdrant"
	redisbus "github.com/yungbote/pagenode-backend/internal/clients/redis"
	"github.com/yungbote/pagenode-backend/internal/ingestion/chunker"
	"github.com/yungbote/pagenode-backend/internal/ingestion/extractor"
	"github.com/yungbote/pagenode-backend/internal/ingestion/registry"
	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/repos"
	"github.com/yungbote/pagenode-backend/internal/types"
)

const (
	embedBatchSize     = 100
	embedBatchParallel = 4
)

// Embedder is the slice of the LLM client the pipeline needs for the
// embedding stage.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// FileFetcher materializes a stored object on local disk for the extractor.
type FileFetcher func(ctx context.Context, key string) (path string, cleanup func(), err error)

// ConceptExtractor and CardGenerator are the LLM sub-stages.
type ConceptExtractor interface {
	ExtractForDocument(ctx context.Context, docID uuid.UUID, title, author string) (int, error)
}

type CardGenerator interface {
	GenerateForDocument(ctx context.Context, docID uuid.UUID) (int, error)
}

// Options carries the collaborators for a pipeline Service. Embedder,
// Vectors, LLM, Bus, Concepts and Cards may be nil: the pipeline degrades to
// the stages its backends support.
type Options struct {
	Docs     repos.DocumentRepo
	Chunks   repos.ChunkRepo
	Tocs     repos.TocEntryRepo
	Settings repos.SettingRepo

	Extract  extractor.Extractor
	Fetch    FileFetcher
	Embedder Embedder
	Vectors  qdrant.VectorStore
	LLM      openai.Client
	Concepts ConceptExtractor
	Cards    CardGenerator
	Bus      redisbus.StatusBus

	Registry *registry.Registry

	ChunkTargetChars  int
	ChunkOverlapChars int
}

// Service drives a document through extract, chunk, embed and the LLM
// stage, persisting status after every transition so a crash can be
// recovered from the stored status alone.
type Service struct {
	opts Options
	log  *logger.Logger
}

func New(opts Options, baseLog *logger.Logger) *Service {
	if opts.ChunkTargetChars <= 0 {
		opts.ChunkTargetChars = chunker.DefaultTargetChars
	}
	if opts.ChunkOverlapChars < 0 {
		opts.ChunkOverlapChars = chunker.DefaultOverlapChars
	}
	return &Service{
		opts: opts,
		log:  baseLog.With("service", "IngestionPipeline"),
	}
}

// Start launches the full pipeline for a document in the background.
// Returns false when a run for the document is already in flight.
func (s *Service) Start(docID uuid.UUID) bool {
	return s.opts.Registry.Start(context.Background(), docID, func(ctx context.Context) {
		s.Run(ctx, docID)
	})
}

// IsProcessing reports whether an ingestion run for the document is active.
func (s *Service) IsProcessing(docID uuid.UUID) bool {
	return s.opts.Registry.IsProcessing(docID)
}

// RecoverOnStartup re-queues documents left mid-pipeline by a previous
// crash. Documents stuck before the LLM stage restart from extraction;
// documents stuck in extracting_concepts rerun only the LLM stage, which
// avoids re-chunking and duplicate chunk rows.
func (s *Service) RecoverOnStartup(ctx context.Context) error {
	stuck, err := s.opts.Docs.FindByStatus(ctx, nil, types.PipelineRestartStatuses())
	if err != nil {
		return err
	}
	for _, doc := range stuck {
		s.log.Info("recovering stuck document", "document_id", doc.ID.String(), "status", string(doc.Status))
		s.Start(doc.ID)
	}

	stuckLLM, err := s.opts.Docs.FindByStatus(ctx, nil, []types.DocumentStatus{types.StatusExtractingConcepts})
	if err != nil {
		return err
	}
	for _, doc := range stuckLLM {
		docID := doc.ID
		s.log.Info("recovering LLM stage", "document_id", docID.String())
		s.opts.Registry.Start(context.Background(), docID, func(taskCtx context.Context) {
			s.RunLLMStage(taskCtx, docID)
		})
	}
	return nil
}

var tracer = otel.Tracer("pagenode/ingestion")

// Run executes the full pipeline synchronously. Any stage error moves the
// document to the error status.
func (s *Service) Run(ctx context.Context, docID uuid.UUID) {
	ctx, span := tracer.Start(ctx, "ingestion.run",
		trace.WithAttributes(attribute.String("document.id", docID.String())))
	defer span.End()

	if err := s.runRecovering(ctx, docID); err != nil {
		span.RecordError(err)
		s.log.Error("ingestion failed", "document_id", docID.String(), "error", err)
		if statusErr := s.setStatus(ctx, docID, types.StatusError); statusErr != nil {
			s.log.Error("failed to set error status", "document_id", docID.String(), "error", statusErr)
		}
	}
}

// runRecovering converts a panicking stage into an ordinary error so the
// document lands in the error status instead of sitting in a mid-pipeline
// status until the next process restart.
func (s *Service) runRecovering(ctx context.Context, docID uuid.UUID) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("ingestion panicked: %v", rec)
		}
	}()
	return s.run(ctx, docID)
}

func (s *Service) run(ctx context.Context, docID uuid.UUID) error {
	if err := s.setStatus(ctx, docID, types.StatusExtracting); err != nil {
		return err
	}

	doc, err := s.opts.Docs.GetByID(ctx, nil, docID)
	if err != nil {
		return err
	}
	if doc == nil {
		s.log.Error("document not found, aborting ingestion", "document_id", docID.String())
		return nil
	}

	path, cleanup, err := s.opts.Fetch(ctx, doc.StorageKey)
	if err != nil {
		return err
	}
	defer cleanup()

	extraction, err := s.opts.Extract.Extract(ctx, path)
	if err != nil {
		return err
	}

	fields := map[string]any{"page_count": extraction.PageCount}
	if extraction.Title != "" && doc.Title == fileStem(doc.StorageKey) {
		fields["title"] = extraction.Title
	}
	if extraction.Author != "" && doc.Author == "" {
		fields["author"] = extraction.Author
	}
	if len(extraction.Metadata) > 0 {
		meta := make(datatypes.JSONMap, len(extraction.Metadata))
		for k, v := range extraction.Metadata {
			meta[k] = v
		}
		fields["metadata"] = meta
	}
	if err := s.opts.Docs.UpdateFields(ctx, nil, docID, fields); err != nil {
		return err
	}

	if len(extraction.Toc) > 0 {
		if err := s.storeToc(ctx, docID, extraction.Toc); err != nil {
			return err
		}
	}

	// Scanned PDF: nothing to chunk or embed.
	if extraction.NeedsOCR {
		s.log.Warn("document flagged needs_ocr", "document_id", docID.String(), "pages", len(extraction.Pages))
		return s.setStatus(ctx, docID, types.StatusNeedsOCR)
	}

	if err := s.setStatus(ctx, docID, types.StatusChunking); err != nil {
		return err
	}

	pieces := chunker.Chunk(extraction.Pages, s.opts.ChunkTargetChars, s.opts.ChunkOverlapChars)
	if len(pieces) == 0 {
		s.log.Warn("no chunks produced", "document_id", docID.String())
		return s.setStatus(ctx, docID, types.StatusReady)
	}

	// A restarted run re-extracts from scratch; prior rows would duplicate.
	if err := s.opts.Chunks.DeleteByDocument(ctx, nil, docID); err != nil {
		return err
	}

	rows := make([]*types.Chunk, 0, len(pieces))
	for _, p := range pieces {
		rows = append(rows, &types.Chunk{
			DocumentID: docID,
			ChunkIndex: p.Index,
			Content:    p.Content,
			PageNumber: p.PageNumber,
			CharStart:  p.CharStart,
			CharEnd:    p.CharEnd,
			TokenCount: p.TokenCount,
		})
	}
	rows, err = s.opts.Chunks.CreateBatch(ctx, nil, rows)
	if err != nil {
		return err
	}

	if err := s.setStatus(ctx, docID, types.StatusEmbedding); err != nil {
		return err
	}

	if s.opts.Embedder == nil || s.opts.Vectors == nil {
		s.log.Info("no embedding backend configured, finishing without vectors",
			"document_id", docID.String(), "chunks", len(rows))
		return s.setStatus(ctx, docID, types.StatusReady)
	}

	if err := s.embed(ctx, docID, rows); err != nil {
		return err
	}

	llmModel, err := s.opts.Settings.Get(ctx, nil, types.SettingLLMModel)
	if err != nil {
		return err
	}
	llmModel = strings.TrimSpace(llmModel)

	if s.opts.LLM == nil || llmModel == "" {
		s.log.Info("document processed (no LLM configured)",
			"document_id", docID.String(),
			"pages", extraction.PageCount,
			"chunks", len(rows),
		)
		return s.setStatus(ctx, docID, types.StatusReady)
	}

	// Re-fetch to pick up the title/author written after extraction.
	if fresh, freshErr := s.opts.Docs.GetByID(ctx, nil, docID); freshErr == nil && fresh != nil {
		doc = fresh
	}
	s.runLLMStage(ctx, docID, doc.Title, doc.Author)
	return nil
}

// RunLLMStage reruns only concept extraction and flashcard generation. Used
// by crash recovery for documents stuck in extracting_concepts.
func (s *Service) RunLLMStage(ctx context.Context, docID uuid.UUID) {
	doc, err := s.opts.Docs.GetByID(ctx, nil, docID)
	if err != nil || doc == nil {
		s.log.Error("document not found for LLM stage", "document_id", docID.String(), "error", err)
		return
	}
	s.runLLMStage(ctx, docID, doc.Title, doc.Author)
}

// runLLMStage wraps each phase independently; the status always advances to
// concepts_ready at the end, even when both phases fail.
func (s *Service) runLLMStage(ctx context.Context, docID uuid.UUID, title, author string) {
	ctx, span := tracer.Start(ctx, "ingestion.llm_stage",
		trace.WithAttributes(attribute.String("document.id", docID.String())))
	defer span.End()

	if err := s.setStatus(ctx, docID, types.StatusExtractingConcepts); err != nil {
		s.log.Error("failed to enter LLM stage", "document_id", docID.String(), "error", err)
		return
	}

	if s.opts.Concepts != nil {
		if n, err := s.opts.Concepts.ExtractForDocument(ctx, docID, title, author); err != nil {
			s.log.Error("concept extraction failed", "document_id", docID.String(), "error", err)
		} else {
			s.log.Info("extracted concepts", "document_id", docID.String(), "count", n)
		}
	}

	if s.opts.Cards != nil {
		if n, err := s.opts.Cards.GenerateForDocument(ctx, docID); err != nil {
			s.log.Error("flashcard generation failed", "document_id", docID.String(), "error", err)
		} else {
			s.log.Info("generated flashcards", "document_id", docID.String(), "count", n)
		}
	}

	if err := s.setStatus(ctx, docID, types.StatusConceptsReady); err != nil {
		s.log.Error("failed to finish LLM stage", "document_id", docID.String(), "error", err)
	}
}

// embed pushes chunk vectors in batches and flips has_embedding in one
// statement afterwards, so a crash never leaves a partially flagged
// document.
func (s *Service) embed(ctx context.Context, docID uuid.UUID, rows []*types.Chunk) error {
	// Purge any vectors from a previous run; absence is fine.
	if err := s.opts.Vectors.DeleteByDocument(ctx, docID.String()); err != nil {
		s.log.Warn("purging prior vectors failed (continuing)", "document_id", docID.String(), "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedBatchParallel)

	for start := 0; start < len(rows); start += embedBatchSize {
		batch := rows[start:min(start+embedBatchSize, len(rows))]
		g.Go(func() error {
			inputs := make([]string, len(batch))
			for i, c := range batch {
				inputs[i] = c.Content
			}
			vectors, err := s.opts.Embedder.Embed(gctx, inputs)
			if err != nil {
				return err
			}

			points := make([]qdrant.ChunkVector, len(batch))
			for i, c := range batch {
				page := 0
				if c.PageNumber != nil {
					page = *c.PageNumber
				}
				points[i] = qdrant.ChunkVector{
					ID:         c.ID.String(),
					Values:     vectors[i],
					DocumentID: docID.String(),
					ChunkIndex: c.ChunkIndex,
					PageNumber: page,
				}
			}
			return s.opts.Vectors.Upsert(gctx, points)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return s.opts.Chunks.MarkEmbedded(ctx, nil, docID)
}

func (s *Service) storeToc(ctx context.Context, docID uuid.UUID, items []extractor.TocItem) error {
	if err := s.opts.Tocs.DeleteByDocument(ctx, nil, docID); err != nil {
		return err
	}
	entries := make([]*types.TocEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, &types.TocEntry{
			DocumentID: docID,
			Title:      item.Title,
			Level:      item.Level,
			PageNumber: item.PageNumber,
		})
	}
	return s.opts.Tocs.CreateBatch(ctx, nil, entries)
}

func (s *Service) setStatus(ctx context.Context, docID uuid.UUID, status types.DocumentStatus) error {
	if err := s.opts.Docs.UpdateStatus(ctx, nil, docID, status); err != nil {
		return err
	}
	if s.opts.Bus != nil {
		ev := redisbus.StatusEvent{DocumentID: docID.String(), Status: status, At: time.Now().UTC()}
		if err := s.opts.Bus.Publish(ctx, ev); err != nil {
			s.log.Warn("status publish failed", "document_id", docID.String(), "error", err)
		}
	}
	return nil
}

func fileStem(key string) string {
	base := filepath.Base(key)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
