package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/types"
)

type ChunkRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) ([]*types.Chunk, error)
	ListByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID, offset, limit int) ([]*types.Chunk, int64, error)
	// GetEmbeddedByDocument returns up to limit embedded chunks ordered by
	// chunk_index; it feeds the LLM sub-stages.
	GetEmbeddedByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID, limit int) ([]*types.Chunk, error)
	// MarkEmbedded flips has_embedding for every chunk of the document in a
	// single statement so a document is never left partially flagged.
	MarkEmbedded(ctx context.Context, tx *gorm.DB, docID uuid.UUID) error
	CountByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) (int64, error)
	DeleteByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *chunkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) ([]*types.Chunk, error) {
	if len(chunks) == 0 {
		return []*types.Chunk{}, nil
	}
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
	}

	// Keep batches small because Content is large
	const batchSize = 100

	if err := r.conn(tx).WithContext(ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) ListByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID, offset, limit int) ([]*types.Chunk, int64, error) {
	conn := r.conn(tx).WithContext(ctx)
	var total int64
	if err := conn.Model(&types.Chunk{}).Where("document_id = ?", docID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []*types.Chunk
	if err := conn.
		Where("document_id = ?", docID).
		Order("chunk_index ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *chunkRepo) GetEmbeddedByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID, limit int) ([]*types.Chunk, error) {
	var rows []*types.Chunk
	q := r.conn(tx).WithContext(ctx).
		Where("document_id = ? AND has_embedding = ?", docID, true).
		Order("chunk_index ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chunkRepo) MarkEmbedded(ctx context.Context, tx *gorm.DB, docID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Chunk{}).
		Where("document_id = ?", docID).
		Update("has_embedding", true).Error
}

func (r *chunkRepo) CountByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) (int64, error) {
	var total int64
	err := r.conn(tx).WithContext(ctx).
		Model(&types.Chunk{}).
		Where("document_id = ?", docID).
		Count(&total).Error
	return total, err
}

func (r *chunkRepo) DeleteByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Where("document_id = ?", docID).
		Delete(&types.Chunk{}).Error
}
