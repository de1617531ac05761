package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type DocumentStatus string

const (
	StatusPending            DocumentStatus = "pending"
	StatusExtracting         DocumentStatus = "extracting"
	StatusChunking           DocumentStatus = "chunking"
	StatusEmbedding          DocumentStatus = "embedding"
	StatusExtractingConcepts DocumentStatus = "extracting_concepts"
	StatusConceptsReady      DocumentStatus = "concepts_ready"
	StatusReady              DocumentStatus = "ready"
	StatusNeedsOCR           DocumentStatus = "needs_ocr"
	StatusError              DocumentStatus = "error"
)

// statusTransitions is the closed transition table for the ingestion
// pipeline. A document's status never regresses except to error; the
// re-entries into extracting and extracting_concepts exist solely for the
// crash-recovery restarts.
var statusTransitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:    {StatusExtracting},
	StatusExtracting: {StatusChunking, StatusNeedsOCR, StatusError, StatusExtracting},
	StatusChunking:   {StatusEmbedding, StatusReady, StatusError, StatusExtracting},
	StatusEmbedding:  {StatusExtractingConcepts, StatusReady, StatusError, StatusExtracting},
	StatusExtractingConcepts: {StatusConceptsReady, StatusExtractingConcepts},
	StatusConceptsReady:      {},
	StatusReady:              {},
	StatusNeedsOCR:           {},
	StatusError:              {},
}

func (s DocumentStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Terminal reports whether the pipeline has nothing left to do for a
// document in this status.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusConceptsReady, StatusReady, StatusNeedsOCR, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal pipeline transition.
func CanTransition(from, to DocumentStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PipelineRestartStatuses are the statuses that classify a document as
// needing a full restart from extraction after a crash.
func PipelineRestartStatuses() []DocumentStatus {
	return []DocumentStatus{StatusExtracting, StatusChunking, StatusEmbedding}
}

type Document struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string         `gorm:"column:title;not null" json:"title"`
	Author       string         `gorm:"column:author;not null;default:''" json:"author"`
	FileType     string         `gorm:"column:file_type;not null;default:'pdf'" json:"file_type"`
	StorageKey   string         `gorm:"column:storage_key;not null" json:"storage_key"`
	FileURL      string         `gorm:"column:file_url" json:"file_url"`
	FileHash     string         `gorm:"column:file_hash;not null;uniqueIndex" json:"file_hash"`
	FileSize     int64          `gorm:"column:file_size;not null" json:"file_size"`
	PageCount    int            `gorm:"column:page_count;not null;default:0" json:"page_count"`
	CoverColor   string         `gorm:"column:cover_color;not null;default:'charcoal'" json:"cover_color"`
	CoverTexture string         `gorm:"column:cover_texture;not null;default:'plain'" json:"cover_texture"`
	CoverKey     string         `gorm:"column:cover_key" json:"cover_key"`
	Metadata     datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	Status       DocumentStatus `gorm:"column:status;not null;default:'pending';index" json:"status"`
	ConceptCount int            `gorm:"column:concept_count;not null;default:0" json:"concept_count"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (Document) TableName() string { return "document" }
