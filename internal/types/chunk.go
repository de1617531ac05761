package types

import (
	"time"

	"github.com/google/uuid"
)

type Chunk struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID   uuid.UUID `gorm:"type:uuid;not null;index:idx_chunk_order,priority:1" json:"document_id"`
	Document     *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`
	ChunkIndex   int       `gorm:"column:chunk_index;not null;index:idx_chunk_order,priority:2" json:"chunk_index"`
	Content      string    `gorm:"column:content;not null" json:"content"`
	PageNumber   *int      `gorm:"column:page_number" json:"page_number"`
	CharStart    int       `gorm:"column:char_start;not null;default:0" json:"char_start"`
	CharEnd      int       `gorm:"column:char_end;not null;default:0" json:"char_end"`
	TokenCount   int       `gorm:"column:token_count;not null;default:0" json:"token_count"`
	HasEmbedding bool      `gorm:"column:has_embedding;not null;default:false" json:"has_embedding"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

func (Chunk) TableName() string { return "chunk" }
