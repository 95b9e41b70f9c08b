package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AICallLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID     string         `gorm:"column:run_id;index" json:"run_id,omitempty"`
	CallType  string         `gorm:"column:call_type;not null;index" json:"call_type"` // normalize|lesson|mermaid|image_prompt|repair|image
	Model     string         `gorm:"column:model;not null" json:"model"`
	Prompt    string         `gorm:"column:prompt" json:"prompt"`
	Response  string         `gorm:"column:response" json:"response"`
	Success   bool           `gorm:"column:success;not null" json:"success"`
	Error     string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AICallLog) TableName() string { return "ai_call_log" }
