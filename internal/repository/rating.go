package repository

import (
	"github.com/google/uuid"
	"github.com/user/lms/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RatingSummary 课程评分汇总
type RatingSummary struct {
	Average float64
	Count   int
}

type RatingRepository struct {
	db *gorm.DB
}

func NewRatingRepository(db *gorm.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// Upsert 同一用户重复评分时覆盖
func (r *RatingRepository) Upsert(rating *model.Rating) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "comment", "updated_at"}),
	}).Create(rating).Error
}

// Summary 计算课程平均分和评分人数
func (r *RatingRepository) Summary(courseID uuid.UUID) (RatingSummary, error) {
	var row struct {
		Average *float64
		Count   int
	}
	err := r.db.Model(&model.Rating{}).
		Select("AVG(rating) AS average, COUNT(*) AS count").
		Where("course_id = ?", courseID).
		Scan(&row).Error
	if err != nil {
		return RatingSummary{}, err
	}
	summary := RatingSummary{Count: row.Count}
	if row.Average != nil {
		summary.Average = *row.Average
	}
	return summary, nil
}
