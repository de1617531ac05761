package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/types"
)

type TocEntryRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, entries []*types.TocEntry) error
	ListByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) ([]*types.TocEntry, error)
	DeleteByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) error
}

type tocEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTocEntryRepo(db *gorm.DB, baseLog *logger.Logger) TocEntryRepo {
	return &tocEntryRepo{db: db, log: baseLog.With("repo", "TocEntryRepo")}
}

func (r *tocEntryRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *tocEntryRepo) CreateBatch(ctx context.Context, tx *gorm.DB, entries []*types.TocEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for i, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.SortOrder = i
	}
	return r.conn(tx).WithContext(ctx).CreateInBatches(entries, 200).Error
}

func (r *tocEntryRepo) ListByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) ([]*types.TocEntry, error) {
	var rows []*types.TocEntry
	if err := r.conn(tx).WithContext(ctx).
		Where("document_id = ?", docID).
		Order("sort_order ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *tocEntryRepo) DeleteByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).
		Where("document_id = ?", docID).
		Delete(&types.TocEntry{}).Error
}
