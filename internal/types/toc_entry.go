package types

import (
	"time"

	"github.com/google/uuid"
)

type TocEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`
	Title      string    `gorm:"column:title;not null" json:"title"`
	Level      int       `gorm:"column:level;not null;default:0" json:"level"`
	SortOrder  int       `gorm:"column:sort_order;not null;default:0" json:"sort_order"`
	PageNumber int       `gorm:"column:page_number" json:"page_number"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (TocEntry) TableName() string { return "toc_entry" }
