package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/user/lms/internal/model"
	"gorm.io/gorm"
)

// ErrStaleProgress 进度已被其他请求修改
var ErrStaleProgress = errors.New("course progress was modified concurrently")

type ProgressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Find 查找用户在课程中的进度
func (r *ProgressRepository) Find(userID, courseID uuid.UUID) (*model.CourseProgress, error) {
	var progress model.CourseProgress
	err := r.db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// ListByUser 用户的全部进度，最近访问在前
func (r *ProgressRepository) ListByUser(userID uuid.UUID) ([]model.CourseProgress, error) {
	var list []model.CourseProgress
	err := r.db.Where("user_id = ?", userID).Order("last_accessed DESC").Find(&list).Error
	return list, err
}

// Create 创建进度
func (r *ProgressRepository) Create(progress *model.CourseProgress) error {
	if progress.Version == 0 {
		progress.Version = 1
	}
	return r.db.Create(progress).Error
}

// Save 按版本号保存，版本不一致返回 ErrStaleProgress
func (r *ProgressRepository) Save(progress *model.CourseProgress) error {
	progress.Recompute()

	result := r.db.Model(&model.CourseProgress{}).
		Where("id = ? AND version = ?", progress.ID, progress.Version).
		Updates(map[string]interface{}{
			"is_completed":          progress.IsCompleted,
			"completion_percentage": progress.CompletionPercentage,
			"lecture_progress":      progress.LectureProgress,
			"last_accessed":         progress.LastAccessed,
			"version":               progress.Version + 1,
			"updated_at":            time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleProgress
	}
	progress.Version++
	return nil
}
