package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LessonRun struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID         string         `gorm:"column:run_id;not null;uniqueIndex" json:"run_id"`
	Topic         string         `gorm:"column:topic;index" json:"topic"`
	Title         string         `gorm:"column:title" json:"title"`
	Status        string         `gorm:"column:status;not null;index" json:"status"` // running|succeeded|failed
	DiagramCount  int            `gorm:"column:diagram_count;not null;default:0" json:"diagram_count"`
	ImageCount    int            `gorm:"column:image_count;not null;default:0" json:"image_count"`
	DiagramsDone  int            `gorm:"column:diagrams_done;not null;default:0" json:"diagrams_done"`
	ImagesDone    int            `gorm:"column:images_done;not null;default:0" json:"images_done"`
	Error         string         `gorm:"column:error" json:"error,omitempty"`
	ArtifactsRoot string         `gorm:"column:artifacts_root" json:"artifacts_root"`
	Metadata      datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LessonRun) TableName() string { return "lesson_run" }
