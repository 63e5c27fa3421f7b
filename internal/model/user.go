package model

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Role 用户角色
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Valid 是否为已知角色
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

const (
	DefaultAvatar     = "default-avatar.jpg"
	resetTokenTTL     = 10 * time.Minute
	resetTokenByteLen = 20
)

// User 用户模型
type User struct {
	Base
	Name                string       `json:"name" gorm:"size:50;not null"`
	Email               string       `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash        string       `json:"-" gorm:"not null"`
	Role                Role         `json:"role" gorm:"size:20;default:student;not null"`
	Avatar              string       `json:"avatar" gorm:"default:default-avatar.jpg"`
	AvatarPublicID      string       `json:"-"`
	Bio                 string       `json:"bio" gorm:"size:200"`
	EnrolledCourses     []Enrollment `json:"enrolledCourses,omitempty" gorm:"foreignKey:UserID"`
	CreatedCourses      []Course     `json:"createdCourses,omitempty" gorm:"foreignKey:InstructorID"`
	ResetPasswordToken  *string      `json:"-" gorm:"index"`
	ResetPasswordExpire *time.Time   `json:"-"`
	LastActive          time.Time    `json:"lastActive"`
}

// Enrollment 用户已报名的课程
type Enrollment struct {
	Base
	UserID     uuid.UUID `json:"userId" gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course"`
	CourseID   uuid.UUID `json:"courseId" gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course"`
	Course     *Course   `json:"course,omitempty"`
	EnrolledAt time.Time `json:"enrolledAt"`
}

// NormalizeEmail 去空格并转小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetPassword 生成 bcrypt 哈希
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword 验证密码
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// GenerateResetToken 生成重置令牌，只保存哈希，返回明文
func (u *User) GenerateResetToken(now time.Time) (string, error) {
	buf := make([]byte, resetTokenByteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	hashed := HashResetToken(token)
	expire := now.Add(resetTokenTTL)
	u.ResetPasswordToken = &hashed
	u.ResetPasswordExpire = &expire
	return token, nil
}

// ResetTokenValid 令牌匹配且未过期
func (u *User) ResetTokenValid(token string, now time.Time) bool {
	if u.ResetPasswordToken == nil || u.ResetPasswordExpire == nil {
		return false
	}
	return *u.ResetPasswordToken == HashResetToken(token) && now.Before(*u.ResetPasswordExpire)
}

// ClearResetToken 清除重置令牌
func (u *User) ClearResetToken() {
	u.ResetPasswordToken = nil
	u.ResetPasswordExpire = nil
}

// HashResetToken 令牌入库前的 sha256
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Touch 更新最后活跃时间
func (u *User) Touch(now time.Time) {
	u.LastActive = now
}

// EnrolledCourseCount 已报名课程数
func (u *User) EnrolledCourseCount() int {
	return len(u.EnrolledCourses)
}

// IsEnrolledIn 是否已报名
func (u *User) IsEnrolledIn(courseID uuid.UUID) bool {
	for _, e := range u.EnrolledCourses {
		if e.CourseID == courseID {
			return true
		}
	}
	return false
}

// Actor 当前请求的操作者，来自 JWT
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// HasRole 是否为指定角色之一
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// CanManage 课程作者或管理员
func (a Actor) CanManage(c *Course) bool {
	return a.Role == RoleAdmin || c.InstructorID == a.ID
}
