package repository

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/user/lms/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CourseFilter 搜索条件
type CourseFilter struct {
	Query    string
	Category string
	Level    string
	MaxPrice *float64
	Limit    int
}

type CourseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func orderedLectures(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC").Order("created_at ASC")
}

func instructorSummary(db *gorm.DB) *gorm.DB {
	return db.Select("id", "name", "email", "avatar", "bio", "role")
}

// Create 创建课程
func (r *CourseRepository) Create(course *model.Course) error {
	return r.db.Omit(clause.Associations).Create(course).Error
}

// FindByID 根据 ID 查找课程（不含讲座）
func (r *CourseRepository) FindByID(id uuid.UUID) (*model.Course, error) {
	var course model.Course
	err := r.db.First(&course, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// FindDetail 课程详情，含讲师和讲座
func (r *CourseRepository) FindDetail(id uuid.UUID) (*model.Course, error) {
	var course model.Course
	err := r.db.
		Preload("Instructor", instructorSummary).
		Preload("Lectures", orderedLectures).
		First(&course, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// FindWithLecturesForUpdate 事务内加锁读取课程及讲座
func (r *CourseRepository) FindWithLecturesForUpdate(id uuid.UUID) (*model.Course, error) {
	var course model.Course
	q := r.db.Preload("Lectures", orderedLectures)
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.First(&course, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// ExistsByTitle 标题是否已存在（不区分大小写）
func (r *CourseRepository) ExistsByTitle(title string, excludeID uuid.UUID) (bool, error) {
	var count int64
	q := r.db.Model(&model.Course{}).Where("LOWER(title) = ?", strings.ToLower(strings.TrimSpace(title)))
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Count(&count).Error
	return count > 0, err
}

// Search 在已发布课程的标题、副标题、描述中模糊搜索
func (r *CourseRepository) Search(f CourseFilter) ([]model.Course, error) {
	q := r.db.Model(&model.Course{}).
		Preload("Instructor", instructorSummary).
		Where("is_published = ?", true)

	if kw := strings.ToLower(strings.TrimSpace(f.Query)); kw != "" {
		pattern := "%" + kw + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(subtitle) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern, pattern)
	}
	if f.Category != "" {
		q = q.Where("LOWER(category) = ?", strings.ToLower(f.Category))
	}
	if f.Level != "" {
		q = q.Where("level = ?", f.Level)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}

	var courses []model.Course
	err := q.Order("created_at DESC").Limit(limit).Find(&courses).Error
	return courses, err
}

// ListPublished 分页获取已发布课程
func (r *CourseRepository) ListPublished(offset, limit int) ([]model.Course, error) {
	var courses []model.Course
	err := r.db.Where("is_published = ?", true).
		Preload("Instructor", instructorSummary).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&courses).Error
	return courses, err
}

// CountPublished 已发布课程总数
func (r *CourseRepository) CountPublished() (int64, error) {
	var count int64
	err := r.db.Model(&model.Course{}).Where("is_published = ?", true).Count(&count).Error
	return count, err
}

// ListByInstructor 讲师创建的课程
func (r *CourseRepository) ListByInstructor(instructorID uuid.UUID) ([]model.Course, error) {
	var courses []model.Course
	err := r.db.Where("instructor_id = ?", instructorID).
		Order("created_at DESC").
		Find(&courses).Error
	return courses, err
}

// Save 保存课程字段，关联不级联写入
func (r *CourseRepository) Save(course *model.Course) error {
	return r.db.Omit(clause.Associations).Save(course).Error
}

// SetPublished 更新发布状态
func (r *CourseRepository) SetPublished(id uuid.UUID, published bool) error {
	return r.db.Model(&model.Course{}).Where("id = ?", id).Update("is_published", published).Error
}

// UpdateRatingSummary 写入评分汇总
func (r *CourseRepository) UpdateRatingSummary(course *model.Course) error {
	return r.db.Model(&model.Course{}).Where("id = ?", course.ID).Updates(map[string]interface{}{
		"average_rating":    course.AverageRating,
		"number_of_ratings": course.NumberOfRatings,
	}).Error
}
