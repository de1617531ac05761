package types

import (
	"time"

	"github.com/google/uuid"
)

type Flashcard struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID  `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *Document  `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`
	ChunkID    *uuid.UUID `gorm:"type:uuid" json:"chunk_id"`
	Chunk      *Chunk     `gorm:"constraint:OnDelete:SET NULL;foreignKey:ChunkID;references:ID" json:"chunk,omitempty"`
	Question   string     `gorm:"column:question;not null" json:"question"`
	Answer     string     `gorm:"column:answer;not null" json:"answer"`
	// Difficulty is the inverse of the SM-2 ease factor, kept in [0.1, 0.9].
	Difficulty  float64    `gorm:"column:difficulty;not null;default:0.3" json:"difficulty"`
	Interval    int        `gorm:"column:interval;not null;default:1" json:"interval"`
	Repetitions int        `gorm:"column:repetitions;not null;default:0" json:"repetitions"`
	// NextReview nil means the card has never been reviewed and is due now.
	NextReview *time.Time `gorm:"column:next_review;index" json:"next_review"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
}

func (Flashcard) TableName() string { return "flashcard" }

type ReviewResult struct {
	ID          uuid.UUID `json:"id"`
	Interval    int       `json:"interval"`
	NextReview  string    `json:"next_review"`
	Repetitions int       `json:"repetitions"`
	Difficulty  float64   `json:"difficulty"`
}

type FlashcardDocStats struct {
	DocumentID uuid.UUID `json:"doc_id"`
	Title      string    `json:"title"`
	Total      int64     `json:"total"`
	Due        int64     `json:"due"`
}

type FlashcardStats struct {
	TotalCards int64               `json:"total_cards"`
	DueToday   int64               `json:"due_today"`
	PerDoc     []FlashcardDocStats `json:"per_doc"`
}
