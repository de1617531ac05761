package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/types"
)

type FlashcardRepo interface {
	Create(ctx context.Context, tx *gorm.DB, card *types.Flashcard) (*types.Flashcard, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Flashcard, error)
	List(ctx context.Context, tx *gorm.DB, docID *uuid.UUID, offset, limit int) ([]*types.Flashcard, int64, error)
	// ListDue returns cards whose next_review is today or earlier, plus
	// never-reviewed cards (next_review NULL), oldest due first.
	ListDue(ctx context.Context, tx *gorm.DB, docID *uuid.UUID, limit int) ([]*types.Flashcard, error)
	UpdateReview(ctx context.Context, tx *gorm.DB, id uuid.UUID, repetitions, interval int, difficulty float64, nextReview time.Time) error
	UpdateContent(ctx context.Context, tx *gorm.DB, id uuid.UUID, question, answer string) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error)
	Stats(ctx context.Context, tx *gorm.DB) (*types.FlashcardStats, error)
}

type flashcardRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFlashcardRepo(db *gorm.DB, baseLog *logger.Logger) FlashcardRepo {
	return &flashcardRepo{db: db, log: baseLog.With("repo", "FlashcardRepo")}
}

func (r *flashcardRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *flashcardRepo) Create(ctx context.Context, tx *gorm.DB, card *types.Flashcard) (*types.Flashcard, error) {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	if err := r.conn(tx).WithContext(ctx).Create(card).Error; err != nil {
		return nil, err
	}
	return card, nil
}

func (r *flashcardRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Flashcard, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Flashcard
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *flashcardRepo) List(ctx context.Context, tx *gorm.DB, docID *uuid.UUID, offset, limit int) ([]*types.Flashcard, int64, error) {
	conn := r.conn(tx).WithContext(ctx).Model(&types.Flashcard{})
	if docID != nil {
		conn = conn.Where("document_id = ?", *docID)
	}
	var total int64
	if err := conn.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []*types.Flashcard
	if err := conn.
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *flashcardRepo) ListDue(ctx context.Context, tx *gorm.DB, docID *uuid.UUID, limit int) ([]*types.Flashcard, error) {
	today := startOfDayUTC(time.Now()).Add(24 * time.Hour)
	conn := r.conn(tx).WithContext(ctx).
		Where("next_review < ? OR next_review IS NULL", today)
	if docID != nil {
		conn = conn.Where("document_id = ?", *docID)
	}
	var rows []*types.Flashcard
	if err := conn.
		Order("next_review ASC NULLS FIRST").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *flashcardRepo) UpdateReview(ctx context.Context, tx *gorm.DB, id uuid.UUID, repetitions, interval int, difficulty float64, nextReview time.Time) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Flashcard{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"repetitions": repetitions,
			"interval":    interval,
			"difficulty":  difficulty,
			"next_review": nextReview,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *flashcardRepo) UpdateContent(ctx context.Context, tx *gorm.DB, id uuid.UUID, question, answer string) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Flashcard{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"question":   question,
			"answer":     answer,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *flashcardRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	res := r.conn(tx).WithContext(ctx).Where("id = ?", id).Delete(&types.Flashcard{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *flashcardRepo) Stats(ctx context.Context, tx *gorm.DB) (*types.FlashcardStats, error) {
	conn := r.conn(tx).WithContext(ctx)
	stats := &types.FlashcardStats{}

	if err := conn.Model(&types.Flashcard{}).Count(&stats.TotalCards).Error; err != nil {
		return nil, err
	}
	today := startOfDayUTC(time.Now()).Add(24 * time.Hour)
	if err := conn.Model(&types.Flashcard{}).
		Where("next_review < ? OR next_review IS NULL", today).
		Count(&stats.DueToday).Error; err != nil {
		return nil, err
	}

	rows := []struct {
		DocumentID uuid.UUID
		Title      string
		Total      int64
		Due        int64
	}{}
	err := conn.Model(&types.Flashcard{}).
		Select(`flashcard.document_id,
			MAX(document.title) AS title,
			COUNT(*) AS total,
			SUM(CASE WHEN (flashcard.next_review < ? OR flashcard.next_review IS NULL) THEN 1 ELSE 0 END) AS due`, today).
		Joins("LEFT JOIN document ON document.id = flashcard.document_id").
		Group("flashcard.document_id").
		Order("title ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.PerDoc = append(stats.PerDoc, types.FlashcardDocStats{
			DocumentID: row.DocumentID,
			Title:      row.Title,
			Total:      row.Total,
			Due:        row.Due,
		})
	}
	return stats, nil
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
