package model

import "github.com/google/uuid"

// Rating 用户对课程的评分，每人每课程一条
type Rating struct {
	Base
	UserID   uuid.UUID `json:"user" gorm:"type:uuid;not null;uniqueIndex:idx_rating_user_course"`
	CourseID uuid.UUID `json:"course" gorm:"type:uuid;not null;uniqueIndex:idx_rating_user_course;index"`
	Rating   int       `json:"rating" gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment  string    `json:"comment" gorm:"size:500"`
}
