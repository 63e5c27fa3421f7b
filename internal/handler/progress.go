package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/user/lms/internal/middleware"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/utils"
)

type lectureProgressRequest struct {
	WatchTime   float64    `json:"watchTime" binding:"min=0"`
	LastWatched *time.Time `json:"lastWatched"`
}

type lectureViewRequest struct {
	WatchTime float64 `json:"watchTime" binding:"min=0"`
	Completed bool    `json:"completed"`
}

func progressIDs(c *gin.Context, withLecture bool) (courseID, lectureID uuid.UUID, ok bool) {
	if courseID, ok = pathID(c, "courseId", msgInvalidCourseID); !ok {
		return
	}
	if withLecture {
		lectureID, ok = pathID(c, "lectureId", "Invalid lecture id")
	}
	return
}

func progressResponse(c *gin.Context, message string, p *model.CourseProgress) {
	utils.SuccessWith(c, message, p, gin.H{
		"completionPercentage": p.CompletionPercentage,
		"state":                p.State(),
	})
}

// MyProgress 当前用户全部课程进度
func (h *Handler) MyProgress(c *gin.Context) {
	list, err := h.Progress.ListMyProgress(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "", list)
}

// GetProgress 课程进度
func (h *Handler) GetProgress(c *gin.Context) {
	courseID, _, ok := progressIDs(c, false)
	if !ok {
		return
	}
	p, err := h.Progress.GetProgress(c.Request.Context(), middleware.GetUserID(c), courseID)
	if err != nil {
		fail(c, err)
		return
	}
	progressResponse(c, "Course progress found successfully", p)
}

// StartCourse 开始学习
func (h *Handler) StartCourse(c *gin.Context) {
	courseID, _, ok := progressIDs(c, false)
	if !ok {
		return
	}
	p, err := h.Progress.StartCourse(c.Request.Context(), middleware.GetUserID(c), courseID)
	if err != nil {
		fail(c, err)
		return
	}
	progressResponse(c, "Course started successfully", p)
}

// RecordLectureView 记录讲座观看
func (h *Handler) RecordLectureView(c *gin.Context) {
	courseID, lectureID, ok := progressIDs(c, true)
	if !ok {
		return
	}
	var req lectureViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}

	p, err := h.Progress.RecordLectureView(c.Request.Context(), middleware.GetUserID(c), courseID, lectureID, req.WatchTime, req.Completed)
	if err != nil {
		fail(c, err)
		return
	}
	progressResponse(c, "Lecture progress recorded successfully", p)
}

// UpdateLectureProgress 更新讲座进度
func (h *Handler) UpdateLectureProgress(c *gin.Context) {
	courseID, lectureID, ok := progressIDs(c, true)
	if !ok {
		return
	}
	var req lectureProgressRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, bindError(err))
			return
		}
	}
	var lastWatched time.Time
	if req.LastWatched != nil {
		lastWatched = *req.LastWatched
	}

	p, err := h.Progress.UpdateLectureProgress(c.Request.Context(), middleware.GetUserID(c), courseID, lectureID, req.WatchTime, lastWatched)
	if err != nil {
		fail(c, err)
		return
	}
	progressResponse(c, "Lecture progress updated successfully", p)
}

// CompleteCourse 标记课程完成
func (h *Handler) CompleteCourse(c *gin.Context) {
	courseID, _, ok := progressIDs(c, false)
	if !ok {
		return
	}
	p, err := h.Progress.MarkCourseCompleted(c.Request.Context(), middleware.GetUserID(c), courseID)
	if err != nil {
		fail(c, err)
		return
	}
	progressResponse(c, "Course completed successfully", p)
}

// ResetProgress 重置进度
func (h *Handler) ResetProgress(c *gin.Context) {
	courseID, _, ok := progressIDs(c, false)
	if !ok {
		return
	}
	p, err := h.Progress.ResetProgress(c.Request.Context(), middleware.GetUserID(c), courseID)
	if err != nil {
		fail(c, err)
		return
	}
	progressResponse(c, "Course progress reset successfully", p)
}
