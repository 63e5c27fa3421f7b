package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/user/lms/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultPassword = "Str0ng!Passw0rd"

// SeedUser 创建指定角色的用户，密码为 DefaultPassword
func SeedUser(tb testing.TB, db *gorm.DB, role model.Role) *model.User {
	tb.Helper()
	id := uuid.New()
	u := &model.User{
		Name:       "Test " + string(role),
		Email:      fmt.Sprintf("%s-%s@example.com", role, id.String()[:8]),
		Role:       role,
		LastActive: time.Now(),
	}
	u.ID = id
	if err := u.SetPassword(DefaultPassword); err != nil {
		tb.Fatalf("hash password: %v", err)
	}
	if err := db.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedCourse 创建课程
func SeedCourse(tb testing.TB, db *gorm.DB, instructor *model.User, published bool) *model.Course {
	tb.Helper()
	c := &model.Course{
		Title:        "Course " + uuid.NewString()[:8],
		Subtitle:     "A practical introduction",
		Description:  "Learn by building things",
		Category:     "programming",
		Level:        model.LevelBeginner,
		Price:        499,
		InstructorID: instructor.ID,
	}
	if err := db.Omit(clause.Associations).Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	if published {
		if err := db.Model(&model.Course{}).Where("id = ?", c.ID).Update("is_published", true).Error; err != nil {
			tb.Fatalf("publish course: %v", err)
		}
		c.IsPublished = true
	}
	return c
}

// SeedLectures 为课程添加 n 个讲座，并同步课程统计
func SeedLectures(tb testing.TB, db *gorm.DB, course *model.Course, n int) []model.Lecture {
	tb.Helper()
	lectures := make([]model.Lecture, 0, n)
	for i := 0; i < n; i++ {
		l := model.Lecture{
			Title:    fmt.Sprintf("Lecture %d", i+1),
			VideoURL: fmt.Sprintf("https://media.example.com/%s/%d.mp4", course.ID, i),
			Duration: 60,
			Order:    i,
			CourseID: course.ID,
		}
		if err := db.Create(&l).Error; err != nil {
			tb.Fatalf("seed lecture: %v", err)
		}
		lectures = append(lectures, l)
		course.AppendLecture(l)
	}
	if err := db.Model(&model.Course{}).Where("id = ?", course.ID).Updates(map[string]interface{}{
		"total_lectures": course.TotalLectures,
		"total_duration": course.TotalDuration,
	}).Error; err != nil {
		tb.Fatalf("update course totals: %v", err)
	}
	return lectures
}

// SeedProgress 创建进度，done 中为 true 的讲座视为已完成
func SeedProgress(tb testing.TB, db *gorm.DB, user *model.User, course *model.Course, lectures []model.Lecture, done ...bool) *model.CourseProgress {
	tb.Helper()
	p := model.NewCourseProgress(user.ID, course.ID, time.Now())
	for i, l := range lectures {
		completed := i < len(done) && done[i]
		p.LectureProgress = append(p.LectureProgress, model.LectureProgress{
			LectureID:   l.ID,
			IsCompleted: completed,
			LastWatched: time.Now(),
		})
	}
	if err := db.Create(p).Error; err != nil {
		tb.Fatalf("seed progress: %v", err)
	}
	return p
}

// Enroll 报名
func Enroll(tb testing.TB, db *gorm.DB, user *model.User, course *model.Course) {
	tb.Helper()
	e := &model.Enrollment{UserID: user.ID, CourseID: course.ID, EnrolledAt: time.Now()}
	if err := db.Create(e).Error; err != nil {
		tb.Fatalf("seed enrollment: %v", err)
	}
}
