package model

import (
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Level 课程难度
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
)

// Valid 是否为已知难度
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

const DefaultThumbnail = "default-thumbnail.jpg"

// Course 课程
type Course struct {
	Base
	Title             string       `json:"title" gorm:"size:100;uniqueIndex;not null"`
	Subtitle          string       `json:"subtitle" gorm:"size:200"`
	Description       string       `json:"description"`
	Category          string       `json:"category" gorm:"index;not null"`
	Level             Level        `json:"level" gorm:"size:20;default:Beginner;not null"`
	Price             float64      `json:"price" gorm:"not null;check:price >= 0"`
	Thumbnail         string       `json:"thumbnail" gorm:"default:default-thumbnail.jpg"`
	ThumbnailPublicID string       `json:"-"`
	Lectures          []Lecture    `json:"lectures,omitempty" gorm:"foreignKey:CourseID"`
	InstructorID      uuid.UUID    `json:"instructorId" gorm:"type:uuid;index;not null"`
	Instructor        *User        `json:"instructor,omitempty"`
	IsPublished       bool         `json:"isPublished" gorm:"default:false;index"`
	TotalDuration     float64      `json:"totalDuration"`
	TotalLectures     int          `json:"totalLectures"`
	AverageRating     float64      `json:"averageRating"`
	NumberOfRatings   int          `json:"numberOfRatings"`
	EnrolledStudents  []Enrollment `json:"enrolledStudents,omitempty" gorm:"foreignKey:CourseID"`
}

// BeforeSave 课程携带讲座列表保存时同步讲座数
func (c *Course) BeforeSave(tx *gorm.DB) error {
	if c.Lectures != nil {
		c.TotalLectures = len(c.Lectures)
	}
	return nil
}

// AppendLecture 追加讲座，时长已知时累加总时长
func (c *Course) AppendLecture(l Lecture) {
	c.Lectures = append(c.Lectures, l)
	c.TotalLectures = len(c.Lectures)
	if l.Duration > 0 {
		c.TotalDuration += l.Duration
	}
}

// HasVideo 课程中是否已有相同视频
func (c *Course) HasVideo(videoURL string) bool {
	for _, l := range c.Lectures {
		if l.VideoURL == videoURL {
			return true
		}
	}
	return false
}

// LectureIDs 讲座 ID 列表
func (c *Course) LectureIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Lectures))
	for _, l := range c.Lectures {
		ids = append(ids, l.ID)
	}
	return ids
}

// ApplyRatingSummary 写入评分汇总，平均分保留一位小数
func (c *Course) ApplyRatingSummary(avg float64, count int) {
	c.AverageRating = math.Round(avg*10) / 10
	c.NumberOfRatings = count
}

// Lecture 讲座
type Lecture struct {
	Base
	Title       string    `json:"title" gorm:"size:100;not null"`
	Description string    `json:"description" gorm:"size:500"`
	VideoURL    string    `json:"videoUrl" gorm:"not null;index"`
	PublicID    string    `json:"publicId"`
	Duration    float64   `json:"duration" gorm:"default:0"`
	IsPreview   bool      `json:"isPreview" gorm:"default:false"`
	Order       int       `json:"order" gorm:"column:sort_order;default:0"`
	CourseID    uuid.UUID `json:"courseId" gorm:"type:uuid;index;not null"`
}

// BeforeSave 时长保留两位小数
func (l *Lecture) BeforeSave(tx *gorm.DB) error {
	l.Duration = math.Round(l.Duration*100) / 100
	return nil
}
