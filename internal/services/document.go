package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/pagenode-backend/internal/clients/qdrant"
	"github.com/yungbote/pagenode-backend/internal/graph"
	"github.com/yungbote/pagenode-backend/internal/ingestion/pipeline"
	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/repos"
	"github.com/yungbote/pagenode-backend/internal/storage"
	"github.com/yungbote/pagenode-backend/internal/types"
)

var ErrUnsupportedFileType = fmt.Errorf("only PDF files are supported")

// DuplicateError reports an upload whose content hash already exists.
type DuplicateError struct {
	ExistingID uuid.UUID
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate file, existing document: %s", e.ExistingID)
}

// DocumentStatusInfo is the status endpoint payload.
type DocumentStatusInfo struct {
	ID           uuid.UUID            `json:"id"`
	Status       types.DocumentStatus `json:"status"`
	IsProcessing bool                 `json:"is_processing"`
	ConceptCount int                  `json:"concept_count"`
}

// DocumentService owns document lifecycle: upload with content dedup,
// metadata CRUD, and delete with cross-store cleanup.
type DocumentService interface {
	Upload(ctx context.Context, filename string, content []byte) (*types.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Document, error)
	List(ctx context.Context, offset, limit int) ([]*types.Document, int64, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) (*types.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Status(ctx context.Context, id uuid.UUID) (*DocumentStatusInfo, error)
	ListChunks(ctx context.Context, id uuid.UUID, offset, limit int) ([]*types.Chunk, int64, error)
	ListToc(ctx context.Context, id uuid.UUID) ([]*types.TocEntry, error)
}

type documentService struct {
	docs    repos.DocumentRepo
	chunks  repos.ChunkRepo
	tocs    repos.TocEntryRepo
	files   storage.FileStore
	covers  CoverService
	vectors qdrant.VectorStore
	graph   graph.Service
	pipe    *pipeline.Service
	log     *logger.Logger
}

func NewDocumentService(
	docs repos.DocumentRepo,
	chunks repos.ChunkRepo,
	tocs repos.TocEntryRepo,
	files storage.FileStore,
	covers CoverService,
	vectors qdrant.VectorStore,
	graphSvc graph.Service,
	pipe *pipeline.Service,
	baseLog *logger.Logger,
) DocumentService {
	return &documentService{
		docs:    docs,
		chunks:  chunks,
		tocs:    tocs,
		files:   files,
		covers:  covers,
		vectors: vectors,
		graph:   graphSvc,
		pipe:    pipe,
		log:     baseLog.With("service", "Document"),
	}
}

func (s *documentService) Upload(ctx context.Context, filename string, content []byte) (*types.Document, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return nil, ErrUnsupportedFileType
	}

	sum := sha256.Sum256(content)
	fileHash := hex.EncodeToString(sum[:])

	existing, err := s.docs.GetByHash(ctx, nil, fileHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &DuplicateError{ExistingID: existing.ID}
	}

	docID := uuid.New()
	key := fmt.Sprintf("documents/%s.pdf", docID)
	fileURL, err := s.files.Save(ctx, key, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	doc := &types.Document{
		ID:           docID,
		Title:        fileStem(filename),
		FileType:     "pdf",
		StorageKey:   key,
		FileURL:      fileURL,
		FileHash:     fileHash,
		FileSize:     int64(len(content)),
		Status:       types.StatusPending,
		CoverColor:   "charcoal",
		CoverTexture: "plain",
	}
	doc, err = s.docs.Create(ctx, nil, doc)
	if err != nil {
		return nil, err
	}

	s.renderCover(ctx, doc)

	if !s.pipe.Start(docID) {
		s.log.Warn("pipeline already running for document", "document_id", docID.String())
	}
	return doc, nil
}

// renderCover is best-effort; a document without a cover image still
// ingests.
func (s *documentService) renderCover(ctx context.Context, doc *types.Document) {
	if s.covers == nil {
		return
	}
	png, err := s.covers.Render(doc.ID, doc.Title, doc.CoverColor, doc.CoverTexture)
	if err != nil {
		s.log.Warn("cover render failed", "document_id", doc.ID.String(), "error", err)
		return
	}
	key := fmt.Sprintf("covers/%s.png", doc.ID)
	if _, err := s.files.Save(ctx, key, bytes.NewReader(png)); err != nil {
		s.log.Warn("cover upload failed", "document_id", doc.ID.String(), "error", err)
		return
	}
	if err := s.docs.UpdateFields(ctx, nil, doc.ID, map[string]any{"cover_key": key}); err != nil {
		s.log.Warn("cover key update failed", "document_id", doc.ID.String(), "error", err)
		return
	}
	doc.CoverKey = key
}

func (s *documentService) Get(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	doc, err := s.docs.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *documentService) List(ctx context.Context, offset, limit int) ([]*types.Document, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.docs.List(ctx, nil, offset, limit)
}

func (s *documentService) Update(ctx context.Context, id uuid.UUID, fields map[string]any) (*types.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]any, len(fields))
	for key, value := range fields {
		switch key {
		case "title", "author":
			allowed[key] = value
		case "cover_color":
			v, _ := value.(string)
			if !ValidCoverColor(v) {
				return nil, fmt.Errorf("unknown cover color %q", v)
			}
			allowed[key] = v
		case "cover_texture":
			v, _ := value.(string)
			if !ValidCoverTexture(v) {
				return nil, fmt.Errorf("unknown cover texture %q", v)
			}
			allowed[key] = v
		}
	}
	if len(allowed) == 0 {
		return doc, nil
	}
	if err := s.docs.UpdateFields(ctx, nil, id, allowed); err != nil {
		return nil, err
	}

	doc, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Cover inputs changed; re-render.
	if _, colorChanged := allowed["cover_color"]; colorChanged {
		s.renderCover(ctx, doc)
	} else if _, textureChanged := allowed["cover_texture"]; textureChanged {
		s.renderCover(ctx, doc)
	}
	return doc, nil
}

// Delete removes the row (chunks, cards and TOC entries cascade) and then
// cleans the other stores best-effort: a failed vector purge or graph
// cleanup is logged, not surfaced.
func (s *documentService) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.docs.GetByID(ctx, nil, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrNotFound
	}

	deleted, err := s.docs.Delete(ctx, nil, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	if s.vectors != nil {
		if err := s.vectors.DeleteByDocument(ctx, id.String()); err != nil {
			s.log.Warn("vector purge failed on delete", "document_id", id.String(), "error", err)
		}
	}
	if s.graph != nil {
		if err := s.graph.DeleteDocumentGraph(ctx, id); err != nil {
			s.log.Warn("graph cleanup failed on delete", "document_id", id.String(), "error", err)
		}
	}
	if doc.StorageKey != "" {
		if err := s.files.Delete(ctx, doc.StorageKey); err != nil {
			s.log.Warn("stored file removal failed", "document_id", id.String(), "error", err)
		}
	}
	if doc.CoverKey != "" {
		if err := s.files.Delete(ctx, doc.CoverKey); err != nil {
			s.log.Warn("cover removal failed", "document_id", id.String(), "error", err)
		}
	}
	return nil
}

func (s *documentService) Status(ctx context.Context, id uuid.UUID) (*DocumentStatusInfo, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DocumentStatusInfo{
		ID:           doc.ID,
		Status:       doc.Status,
		IsProcessing: s.pipe.IsProcessing(doc.ID),
		ConceptCount: doc.ConceptCount,
	}, nil
}

func (s *documentService) ListChunks(ctx context.Context, id uuid.UUID, offset, limit int) ([]*types.Chunk, int64, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.chunks.ListByDocument(ctx, nil, id, offset, limit)
}

func (s *documentService) ListToc(ctx context.Context, id uuid.UUID) ([]*types.TocEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.tocs.ListByDocument(ctx, nil, id)
}

func fileStem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
