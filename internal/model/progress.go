package model

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProgressState 学习进度状态
type ProgressState string

const (
	StateNotStarted ProgressState = "not_started"
	StateInProgress ProgressState = "in_progress"
	StateCompleted  ProgressState = "completed"
)

var (
	ErrLectureNotStarted   = errors.New("lecture progress not found")
	ErrLectureNotCompleted = errors.New("lecture not completed")
	ErrCourseNotCompleted  = errors.New("course not completed")
	ErrCoursePublished     = errors.New("course is published")
	ErrAlreadyCompleted    = errors.New("course already completed")
)

// LectureProgress 单个讲座的观看记录，内嵌在 CourseProgress 中
type LectureProgress struct {
	LectureID   uuid.UUID `json:"lecture"`
	IsCompleted bool      `json:"isCompleted"`
	WatchTime   float64   `json:"watchTime"`
	LastWatched time.Time `json:"lastWatched"`
}

// CourseProgress 用户在某课程中的进度
type CourseProgress struct {
	Base
	UserID               uuid.UUID                           `json:"user" gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_course"`
	CourseID             uuid.UUID                           `json:"course" gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_course"`
	IsCompleted          bool                                `json:"isCompleted" gorm:"default:false"`
	CompletionPercentage int                                 `json:"completionPercentage" gorm:"default:0"`
	LectureProgress      datatypes.JSONSlice[LectureProgress] `json:"lectureProgress"`
	LastAccessed         time.Time                           `json:"lastAccessed"`
	Version              int                                 `json:"-" gorm:"not null;default:1"`
}

// NewCourseProgress 尚未开始的进度
func NewCourseProgress(userID, courseID uuid.UUID, now time.Time) *CourseProgress {
	return &CourseProgress{
		UserID:          userID,
		CourseID:        courseID,
		LectureProgress: datatypes.JSONSlice[LectureProgress]{},
		LastAccessed:    now,
		Version:         1,
	}
}

// BeforeSave 持久化前重算完成度
func (p *CourseProgress) BeforeSave(tx *gorm.DB) error {
	p.Recompute()
	return nil
}

// State 当前状态
func (p *CourseProgress) State() ProgressState {
	switch {
	case p == nil || len(p.LectureProgress) == 0:
		return StateNotStarted
	case p.IsCompleted:
		return StateCompleted
	default:
		return StateInProgress
	}
}

// Recompute 完成度 = round(100 * 已完成 / 总数)，列表为空时不变
func (p *CourseProgress) Recompute() {
	total := len(p.LectureProgress)
	if total == 0 {
		return
	}
	completed := 0
	for _, lp := range p.LectureProgress {
		if lp.IsCompleted {
			completed++
		}
	}
	p.CompletionPercentage = CompletionPercentage(completed, total)
	p.IsCompleted = p.CompletionPercentage == 100
}

// CompletionPercentage 四舍五入（0.5 进位）
func CompletionPercentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) * 100 / float64(total)))
}

// Touch 更新最后访问时间
func (p *CourseProgress) Touch(now time.Time) {
	p.LastAccessed = now
}

func (p *CourseProgress) findLecture(lectureID uuid.UUID) int {
	for i := range p.LectureProgress {
		if p.LectureProgress[i].LectureID == lectureID {
			return i
		}
	}
	return -1
}

// Lecture 查找讲座记录
func (p *CourseProgress) Lecture(lectureID uuid.UUID) (LectureProgress, bool) {
	if i := p.findLecture(lectureID); i >= 0 {
		return p.LectureProgress[i], true
	}
	return LectureProgress{}, false
}

// Start 为尚未记录的讲座补充未完成条目
func (p *CourseProgress) Start(lectureIDs []uuid.UUID, now time.Time) {
	for _, id := range lectureIDs {
		if p.findLecture(id) >= 0 {
			continue
		}
		p.LectureProgress = append(p.LectureProgress, LectureProgress{LectureID: id, LastWatched: now})
	}
	p.Recompute()
	p.Touch(now)
}

// RecordLectureWatch 记录一次观看；观看时长只增不减，已完成不会回退
func (p *CourseProgress) RecordLectureWatch(lectureID uuid.UUID, watchTime float64, at time.Time, completed bool) {
	i := p.findLecture(lectureID)
	if i < 0 {
		p.LectureProgress = append(p.LectureProgress, LectureProgress{LectureID: lectureID})
		i = len(p.LectureProgress) - 1
	}
	lp := &p.LectureProgress[i]
	if watchTime > lp.WatchTime {
		lp.WatchTime = watchTime
	}
	lp.IsCompleted = lp.IsCompleted || completed
	lp.LastWatched = at
	p.Recompute()
	p.Touch(at)
}

// CompleteLecture 更新已完成讲座的观看信息，讲座必须已记录且已完成
func (p *CourseProgress) CompleteLecture(lectureID uuid.UUID, watchTime float64, lastWatched time.Time) error {
	i := p.findLecture(lectureID)
	if i < 0 {
		return ErrLectureNotStarted
	}
	lp := &p.LectureProgress[i]
	if !lp.IsCompleted {
		return ErrLectureNotCompleted
	}
	lp.IsCompleted = true
	lp.WatchTime = watchTime
	lp.LastWatched = lastWatched
	p.Recompute()
	return nil
}

// ConfirmCompleted 课程必须已完成，重复调用无副作用
func (p *CourseProgress) ConfirmCompleted() error {
	if !p.IsCompleted {
		return ErrCourseNotCompleted
	}
	p.IsCompleted = true
	return nil
}

// Reset 清空进度；已发布课程和已完成进度不可重置
func (p *CourseProgress) Reset(coursePublished bool) error {
	if coursePublished {
		return ErrCoursePublished
	}
	if p.IsCompleted {
		return ErrAlreadyCompleted
	}
	p.LectureProgress = datatypes.JSONSlice[LectureProgress]{}
	p.IsCompleted = false
	p.CompletionPercentage = 0
	return nil
}
