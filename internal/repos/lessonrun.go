package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ugta/ugta-backend/internal/logger"
	"github.com/ugta/ugta-backend/internal/types"
)

type LessonRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, runs []*types.LessonRun) ([]*types.LessonRun, error)
	GetByRunID(ctx context.Context, tx *gorm.DB, runID string) (*types.LessonRun, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.LessonRun, error)
}

type lessonRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonRunRepo(db *gorm.DB, baseLog *logger.Logger) LessonRunRepo {
	return &lessonRunRepo{db: db, log: baseLog.With("repo", "LessonRunRepo")}
}

func (r *lessonRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.LessonRun) ([]*types.LessonRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(runs) == 0 {
		return []*types.LessonRun{}, nil
	}
	for _, run := range runs {
		if run.ID == uuid.Nil {
			run.ID = uuid.New()
		}
	}
	if err := transaction.WithContext(ctx).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *lessonRunRepo) GetByRunID(ctx context.Context, tx *gorm.DB, runID string) (*types.LessonRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.LessonRun
	err := transaction.WithContext(ctx).
		Where("run_id = ?", runID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *lessonRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.LessonRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *lessonRunRepo) ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.LessonRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var runs []*types.LessonRun
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
