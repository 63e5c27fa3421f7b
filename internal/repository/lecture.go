package repository

import (
	"errors"

	"github.com/google/uuid"
	"github.com/user/lms/internal/model"
	"gorm.io/gorm"
)

type LectureRepository struct {
	db *gorm.DB
}

func NewLectureRepository(db *gorm.DB) *LectureRepository {
	return &LectureRepository{db: db}
}

// Create 创建讲座
func (r *LectureRepository) Create(lecture *model.Lecture) error {
	return r.db.Create(lecture).Error
}

// FindInCourse 查找属于某课程的讲座
func (r *LectureRepository) FindInCourse(courseID, lectureID uuid.UUID) (*model.Lecture, error) {
	var lecture model.Lecture
	err := r.db.Where("id = ? AND course_id = ?", lectureID, courseID).First(&lecture).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lecture, nil
}

// ListByCourse 按顺序列出课程讲座
func (r *LectureRepository) ListByCourse(courseID uuid.UUID) ([]model.Lecture, error) {
	var lectures []model.Lecture
	err := orderedLectures(r.db.Where("course_id = ?", courseID)).Find(&lectures).Error
	return lectures, err
}

// IDsByCourse 课程的讲座 ID
func (r *LectureRepository) IDsByCourse(courseID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := orderedLectures(r.db.Model(&model.Lecture{}).Where("course_id = ?", courseID)).Pluck("id", &ids).Error
	return ids, err
}
