package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/middleware"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/repository"
	"github.com/user/lms/internal/service"
	"github.com/user/lms/internal/utils"
)

const msgInvalidCourseID = "Invalid course id"

type courseForm struct {
	Title       string   `form:"title" binding:"max=100"`
	Subtitle    *string  `form:"subtitle" binding:"omitempty,max=200"`
	Description *string  `form:"description"`
	Category    string   `form:"category"`
	Level       string   `form:"level" binding:"omitempty,course_level"`
	Price       *float64 `form:"price" binding:"omitempty,min=0"`
}

func (f courseForm) input() service.CourseInput {
	return service.CourseInput{
		Title:       f.Title,
		Subtitle:    f.Subtitle,
		Description: f.Description,
		Category:    f.Category,
		Level:       model.Level(f.Level),
		Price:       f.Price,
	}
}

type lectureForm struct {
	Title       string  `form:"title" binding:"max=100"`
	Description string  `form:"description" binding:"max=500"`
	VideoURL    string  `form:"videoUrl"`
	Duration    float64 `form:"duration" binding:"min=0"`
	IsPreview   bool    `form:"isPreview"`
	Order       *int    `form:"order"`
}

type ratingRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=500"`
}

// CreateCourse 创建课程（multipart，可带 thumbnail）
func (h *Handler) CreateCourse(c *gin.Context) {
	var form courseForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, bindError(err))
		return
	}

	thumb, cleanup, err := saveUpload(c, "thumbnail")
	defer cleanup()
	if err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "Invalid thumbnail upload", err))
		return
	}
	if err := requireContentType(thumb, "image/", "Thumbnail must be an image"); err != nil {
		fail(c, err)
		return
	}

	course, err := h.Courses.CreateCourse(c.Request.Context(), middleware.GetActor(c), form.input(), thumb)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Created(c, "Course created successfully", course)
}

// SearchCourses 关键字搜索
func (h *Handler) SearchCourses(c *gin.Context) {
	filter := repository.CourseFilter{
		Query:    c.Query("query"),
		Category: c.Query("category"),
		Level:    c.Query("level"),
	}
	if raw := c.Query("price"); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || price < 0 {
			fail(c, apperr.Validation("Price must be a non-negative number"))
			return
		}
		filter.MaxPrice = &price
	}

	courses, err := h.Courses.SearchCourses(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	utils.SuccessWith(c, "", courses, gin.H{"count": len(courses)})
}

// PublishedCourses 已发布课程分页
func (h *Handler) PublishedCourses(c *gin.Context) {
	page, err := h.Courses.ListPublished(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "limit", 10))
	if err != nil {
		fail(c, err)
		return
	}
	utils.SuccessWith(c, "Courses found successfully", page.Courses, gin.H{
		"pagination": gin.H{
			"page":         page.Page,
			"limit":        page.Limit,
			"totalPages":   page.TotalPages,
			"totalCourses": page.TotalCourses,
		},
	})
}

// MyCourses 讲师创建的课程
func (h *Handler) MyCourses(c *gin.Context) {
	courses, err := h.Courses.ListMyCourses(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "", courses)
}

// GetCourse 课程详情
func (h *Handler) GetCourse(c *gin.Context) {
	id, ok := pathID(c, "courseId", msgInvalidCourseID)
	if !ok {
		return
	}
	course, err := h.Courses.GetCourse(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "", course)
}

// UpdateCourse 更新课程（multipart，可带 thumbnail）
func (h *Handler) UpdateCourse(c *gin.Context) {
	id, ok := pathID(c, "courseId", msgInvalidCourseID)
	if !ok {
		return
	}
	var form courseForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, bindError(err))
		return
	}

	thumb, cleanup, err := saveUpload(c, "thumbnail")
	defer cleanup()
	if err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "Invalid thumbnail upload", err))
		return
	}
	if err := requireContentType(thumb, "image/", "Thumbnail must be an image"); err != nil {
		fail(c, err)
		return
	}

	course, err := h.Courses.UpdateCourse(c.Request.Context(), middleware.GetActor(c), id, form.input(), thumb)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "Course updated successfully", course)
}

// PublishCourse ?publish=true|false
func (h *Handler) PublishCourse(c *gin.Context) {
	id, ok := pathID(c, "courseId", msgInvalidCourseID)
	if !ok {
		return
	}
	publish, err := strconv.ParseBool(c.DefaultQuery("publish", "true"))
	if err != nil {
		fail(c, apperr.Validation("publish must be true or false"))
		return
	}

	course, err := h.Courses.SetPublished(c.Request.Context(), middleware.GetActor(c), id, publish)
	if err != nil {
		fail(c, err)
		return
	}
	msg := "Course published successfully"
	if !publish {
		msg = "Course unpublished successfully"
	}
	utils.Success(c, msg, course)
}

// AddLecture 新增讲座（multipart，video 文件或 videoUrl）
func (h *Handler) AddLecture(c *gin.Context) {
	id, ok := pathID(c, "courseId", msgInvalidCourseID)
	if !ok {
		return
	}
	var form lectureForm
	if err := c.ShouldBind(&form); err != nil {
		fail(c, bindError(err))
		return
	}

	video, cleanup, err := saveUpload(c, "video")
	defer cleanup()
	if err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "Invalid video upload", err))
		return
	}
	if err := requireContentType(video, "video/", "Lecture video must be a video file"); err != nil {
		fail(c, err)
		return
	}

	lecture, err := h.Courses.AddLecture(c.Request.Context(), middleware.GetActor(c), id, service.LectureInput{
		Title:       form.Title,
		Description: form.Description,
		VideoURL:    form.VideoURL,
		Video:       video,
		Duration:    form.Duration,
		IsPreview:   form.IsPreview,
		Order:       form.Order,
	})
	if err != nil {
		fail(c, err)
		return
	}
	utils.Created(c, "Lecture added successfully", lecture)
}

// CourseLectures 已发布课程的讲座
func (h *Handler) CourseLectures(c *gin.Context) {
	id, ok := pathID(c, "courseId", msgInvalidCourseID)
	if !ok {
		return
	}
	lectures, err := h.Courses.GetCourseLectures(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "", lectures)
}

// RateCourse 评分
func (h *Handler) RateCourse(c *gin.Context) {
	id, ok := pathID(c, "courseId", msgInvalidCourseID)
	if !ok {
		return
	}
	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}

	course, err := h.Courses.RateCourse(c.Request.Context(), middleware.GetActor(c), id, req.Rating, req.Comment)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "Rating saved", gin.H{
		"averageRating":   course.AverageRating,
		"numberOfRatings": course.NumberOfRatings,
	})
}
