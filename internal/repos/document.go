package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/types"
)

type DocumentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error)
	GetByHash(ctx context.Context, tx *gorm.DB, fileHash string) (*types.Document, error)
	List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]*types.Document, int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
	// UpdateStatus validates the transition against the pipeline transition
	// table before committing it. The persisted status is the single source
	// of truth for crash recovery, so an illegal write is rejected here
	// rather than trusted to callers.
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, to types.DocumentStatus) error
	SetConceptCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, count int) error
	FindByStatus(ctx context.Context, tx *gorm.DB, statuses []types.DocumentStatus) ([]*types.Document, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *documentRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("document required")
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = types.StatusPending
	}
	if err := r.conn(tx).WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Document
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *documentRepo) GetByHash(ctx context.Context, tx *gorm.DB, fileHash string) (*types.Document, error) {
	if fileHash == "" {
		return nil, nil
	}
	var row types.Document
	err := r.conn(tx).WithContext(ctx).Where("file_hash = ?", fileHash).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *documentRepo) List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]*types.Document, int64, error) {
	conn := r.conn(tx).WithContext(ctx)
	var total int64
	if err := conn.Model(&types.Document{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []*types.Document
	if err := conn.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *documentRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if id == uuid.Nil || len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now().UTC()
	return r.conn(tx).WithContext(ctx).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *documentRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, to types.DocumentStatus) error {
	if id == uuid.Nil {
		return fmt.Errorf("document id required")
	}
	if !to.Valid() {
		return fmt.Errorf("unknown document status %q", to)
	}
	current, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("document %s not found", id)
	}
	if current.Status != to && !types.CanTransition(current.Status, to) {
		return fmt.Errorf("illegal status transition %s -> %s for document %s", current.Status, to, id)
	}
	return r.conn(tx).WithContext(ctx).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()}).Error
}

func (r *documentRepo) SetConceptCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, count int) error {
	if id == uuid.Nil {
		return nil
	}
	return r.conn(tx).WithContext(ctx).
		Model(&types.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{"concept_count": count, "updated_at": time.Now().UTC()}).Error
}

func (r *documentRepo) FindByStatus(ctx context.Context, tx *gorm.DB, statuses []types.DocumentStatus) ([]*types.Document, error) {
	var rows []*types.Document
	if len(statuses) == 0 {
		return rows, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *documentRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := r.conn(tx).WithContext(ctx).Where("id = ?", id).Delete(&types.Document{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
