package types

import "time"

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"column:value;not null;default:''" json:"value"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Setting) TableName() string { return "setting" }

// Setting keys consumed by the ingestion pipeline.
const (
	SettingLLMModel = "llm_model"
)
