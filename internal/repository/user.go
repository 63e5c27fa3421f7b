package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/user/lms/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create 创建用户，密码需已哈希
func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

// FindByEmail 根据邮箱查找用户
func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", model.NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID 根据 ID 查找用户
func (r *UserRepository) FindByID(id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindProfile 查找用户并带出已报名课程
func (r *UserRepository) FindProfile(id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.
		Preload("EnrolledCourses", func(db *gorm.DB) *gorm.DB { return db.Order("enrolled_at DESC") }).
		Preload("EnrolledCourses.Course").
		First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByResetToken 根据哈希后的重置令牌查找
func (r *UserRepository) FindByResetToken(hashed string, now time.Time) (*model.User, error) {
	var user model.User
	err := r.db.Where("reset_password_token = ? AND reset_password_expire > ?", hashed, now).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Save 保存用户（不级联关联）
func (r *UserRepository) Save(user *model.User) error {
	return r.db.Omit(clause.Associations).Save(user).Error
}

// TouchLastActive 只更新活跃时间
func (r *UserRepository) TouchLastActive(id uuid.UUID, at time.Time) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Update("last_active", at).Error
}

// Enroll 报名课程，重复报名忽略
func (r *UserRepository) Enroll(userID, courseID uuid.UUID, at time.Time) error {
	enrollment := &model.Enrollment{UserID: userID, CourseID: courseID, EnrolledAt: at}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(enrollment).Error
}

// Unenroll 取消报名
func (r *UserRepository) Unenroll(userID, courseID uuid.UUID) error {
	return r.db.Where("user_id = ? AND course_id = ?", userID, courseID).Delete(&model.Enrollment{}).Error
}

// IsEnrolled 是否已报名
func (r *UserRepository) IsEnrolled(userID, courseID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error
	return count > 0, err
}

// ClearExpiredResetTokens 清理过期的重置令牌
func (r *UserRepository) ClearExpiredResetTokens(now time.Time) (int64, error) {
	result := r.db.Model(&model.User{}).
		Where("reset_password_expire IS NOT NULL AND reset_password_expire <= ?", now).
		Updates(map[string]interface{}{
			"reset_password_token":  nil,
			"reset_password_expire": nil,
		})
	return result.RowsAffected, result.Error
}
