package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/repository"
	"github.com/user/lms/internal/utils"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	publishedCachePrefix = "published:"
	searchLimit          = 10
	maxPageLimit         = 100
)

// CourseInput 创建/更新课程参数，更新时空值表示不修改
type CourseInput struct {
	Title       string
	Subtitle    *string
	Description *string
	Category    string
	Level       model.Level
	Price       *float64
}

// LectureInput 新增讲座参数
type LectureInput struct {
	Title       string
	Description string
	VideoURL    string
	PublicID    string
	Video       *FileUpload
	Duration    float64
	IsPreview   bool
	Order       *int
}

// PublishedPage 已发布课程分页结果
type PublishedPage struct {
	Courses      []model.Course `json:"courses"`
	Page         int            `json:"page"`
	Limit        int            `json:"limit"`
	TotalPages   int            `json:"totalPages"`
	TotalCourses int64          `json:"totalCourses"`
}

// CourseService 课程与讲座管理
type CourseService struct {
	repos     *repository.Repositories
	media     MediaStore
	log       zerolog.Logger
	published *utils.PageCache
	search    *utils.SearchCache[[]model.Course]
	sf        singleflight.Group
	now       Clock
}

// NewCourseService 创建课程服务
func NewCourseService(repos *repository.Repositories, media MediaStore, log zerolog.Logger) *CourseService {
	return &CourseService{
		repos:     repos,
		media:     media,
		log:       log,
		published: utils.NewPageCache(time.Minute),
		search:    utils.NewSearchCache[[]model.Course](500, 5*time.Minute),
		now:       time.Now,
	}
}

func (s *CourseService) invalidate() {
	s.published.DeletePrefix(publishedCachePrefix)
	s.search.Clear()
}

func (s *CourseService) upload(ctx context.Context, file *FileUpload) (url, publicID string, err error) {
	if file == nil {
		return "", "", nil
	}
	if s.media == nil {
		return "", "", apperr.Internal("Media storage is not configured")
	}
	up, err := s.media.UploadFile(ctx, file.Path, file.ContentType)
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindInternal, "Failed to upload media", err)
	}
	return up.SecureURL, up.PublicID, nil
}

// discard 删除不再使用的媒体，失败只记录日志
func (s *CourseService) discard(ctx context.Context, publicID string) {
	if publicID == "" || s.media == nil {
		return
	}
	if err := s.media.Delete(ctx, publicID); err != nil {
		s.log.Warn().Err(err).Str("public_id", publicID).Msg("delete media failed")
	}
}

// CreateCourse 讲师创建课程
func (s *CourseService) CreateCourse(ctx context.Context, actor model.Actor, in CourseInput, thumbnail *FileUpload) (*model.Course, error) {
	if !actor.HasRole(model.RoleInstructor, model.RoleAdmin) {
		return nil, apperr.Forbidden("You are not authorized to access this route")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" || strings.TrimSpace(in.Category) == "" || in.Level == "" || in.Price == nil {
		return nil, apperr.Validation("All fields are required")
	}
	if err := validateCourseFields(in); err != nil {
		return nil, err
	}

	repos := s.repos.WithContext(ctx)
	exists, err := repos.Course.ExistsByTitle(title, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("Course already exists")
	}

	course := &model.Course{
		Title:        title,
		Category:     strings.TrimSpace(in.Category),
		Level:        in.Level,
		Price:        *in.Price,
		Thumbnail:    model.DefaultThumbnail,
		InstructorID: actor.ID,
	}
	if in.Subtitle != nil {
		course.Subtitle = strings.TrimSpace(*in.Subtitle)
	}
	if in.Description != nil {
		course.Description = *in.Description
	}

	url, publicID, err := s.upload(ctx, thumbnail)
	if err != nil {
		return nil, err
	}
	if url != "" {
		course.Thumbnail = url
		course.ThumbnailPublicID = publicID
	}

	if err := repos.Course.Create(course); err != nil {
		s.discard(ctx, publicID)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("Course already exists")
		}
		return nil, err
	}

	s.invalidate()
	s.log.Info().Str("course_id", course.ID.String()).Str("instructor_id", actor.ID.String()).Msg("course created")
	return course, nil
}

func validateCourseFields(in CourseInput) error {
	if in.Subtitle != nil && strings.TrimSpace(*in.Subtitle) == "" {
		return apperr.Validation("Subtitle can not be empty if provided")
	}
	if in.Level != "" && !in.Level.Valid() {
		return apperr.Validation("Level must be Beginner, Intermediate or Advanced")
	}
	if in.Price != nil && (*in.Price < 0 || math.IsNaN(*in.Price)) {
		return apperr.Validation("Price must be a non-negative number")
	}
	if len(in.Title) > 100 {
		return apperr.Validation("Title can not exceed 100 characters")
	}
	if in.Subtitle != nil && len(*in.Subtitle) > 200 {
		return apperr.Validation("Subtitle can not exceed 200 characters")
	}
	return nil
}

// SearchCourses 关键字搜索，最多 10 条
func (s *CourseService) SearchCourses(ctx context.Context, f repository.CourseFilter) ([]model.Course, error) {
	f.Limit = searchLimit
	key := searchKey(f)

	if cached, ok := s.search.Get(key); ok {
		if len(cached) == 0 {
			return nil, apperr.NotFound("No courses found")
		}
		return cached, nil
	}

	// 相同条件的并发搜索只查询一次，共享查询不随首个请求取消
	shared := context.WithoutCancel(ctx)
	val, err, _ := s.sf.Do(key, func() (interface{}, error) {
		courses, err := s.repos.WithContext(shared).Course.Search(f)
		if err != nil {
			return nil, err
		}
		s.search.Set(key, courses)
		return courses, nil
	})
	if err != nil {
		return nil, err
	}

	courses := val.([]model.Course)
	if len(courses) == 0 {
		return nil, apperr.NotFound("No courses found")
	}
	return courses, nil
}

func searchKey(f repository.CourseFilter) string {
	price := ""
	if f.MaxPrice != nil {
		price = fmt.Sprintf("%.2f", *f.MaxPrice)
	}
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(f.Query)),
		strings.ToLower(f.Category),
		f.Level,
		price,
	}, "|")
}

// ListPublished 已发布课程分页，列表与总数并行查询
func (s *CourseService) ListPublished(ctx context.Context, page, limit int) (*PublishedPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	key := fmt.Sprintf("%s%d:%d", publishedCachePrefix, page, limit)
	if cached, ok := s.published.Get(key); ok {
		return cached.(*PublishedPage), nil
	}

	var (
		courses []model.Course
		total   int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		courses, err = s.repos.WithContext(gctx).Course.ListPublished((page-1)*limit, limit)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repos.WithContext(gctx).Course.CountPublished()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(courses) == 0 {
		return nil, apperr.NotFound("No published courses found")
	}

	result := &PublishedPage{
		Courses:      courses,
		Page:         page,
		Limit:        limit,
		TotalPages:   int(math.Ceil(float64(total) / float64(limit))),
		TotalCourses: total,
	}
	s.published.Set(key, result)
	return result, nil
}

// ListMyCourses 讲师自己创建的课程
func (s *CourseService) ListMyCourses(ctx context.Context, actor model.Actor) ([]model.Course, error) {
	if !actor.HasRole(model.RoleInstructor, model.RoleAdmin) {
		return nil, apperr.Forbidden("You are not authorized to access this route")
	}
	courses, err := s.repos.WithContext(ctx).Course.ListByInstructor(actor.ID)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, apperr.NotFound("No courses found")
	}
	return courses, nil
}

// GetCourse 课程详情
func (s *CourseService) GetCourse(ctx context.Context, courseID uuid.UUID) (*model.Course, error) {
	if courseID == uuid.Nil {
		return nil, apperr.NotFound("Invalid course id")
	}
	course, err := s.repos.WithContext(ctx).Course.FindDetail(courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, apperr.NotFound("Course not found")
	}
	return course, nil
}

func (s *CourseService) manageable(repos *repository.Repositories, actor model.Actor, courseID uuid.UUID) (*model.Course, error) {
	if courseID == uuid.Nil {
		return nil, apperr.NotFound("Invalid course id")
	}
	course, err := repos.Course.FindByID(courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, apperr.NotFound("Course not found")
	}
	if !actor.CanManage(course) {
		return nil, apperr.Forbidden("You are not authorized to access this route")
	}
	return course, nil
}

// UpdateCourse 更新课程信息，新缩略图上传成功后删除旧图
func (s *CourseService) UpdateCourse(ctx context.Context, actor model.Actor, courseID uuid.UUID, in CourseInput, thumbnail *FileUpload) (*model.Course, error) {
	repos := s.repos.WithContext(ctx)
	course, err := s.manageable(repos, actor, courseID)
	if err != nil {
		return nil, err
	}
	if err := validateCourseFields(in); err != nil {
		return nil, err
	}

	if title := strings.TrimSpace(in.Title); title != "" && title != course.Title {
		exists, err := repos.Course.ExistsByTitle(title, course.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperr.Conflict("Course already exists")
		}
		course.Title = title
	}
	if in.Subtitle != nil {
		course.Subtitle = strings.TrimSpace(*in.Subtitle)
	}
	if in.Description != nil {
		course.Description = *in.Description
	}
	if c := strings.TrimSpace(in.Category); c != "" {
		course.Category = c
	}
	if in.Level != "" {
		course.Level = in.Level
	}
	if in.Price != nil {
		course.Price = *in.Price
	}

	oldPublicID := course.ThumbnailPublicID
	url, publicID, err := s.upload(ctx, thumbnail)
	if err != nil {
		return nil, err
	}
	if url != "" {
		course.Thumbnail = url
		course.ThumbnailPublicID = publicID
	}

	if err := repos.Course.Save(course); err != nil {
		s.discard(ctx, publicID)
		return nil, storeError(err)
	}
	if url != "" {
		s.discard(ctx, oldPublicID)
	}

	s.invalidate()
	return course, nil
}

// SetPublished 发布或下架课程
func (s *CourseService) SetPublished(ctx context.Context, actor model.Actor, courseID uuid.UUID, published bool) (*model.Course, error) {
	repos := s.repos.WithContext(ctx)
	course, err := s.manageable(repos, actor, courseID)
	if err != nil {
		return nil, err
	}
	if err := repos.Course.SetPublished(course.ID, published); err != nil {
		return nil, err
	}
	course.IsPublished = published
	s.invalidate()
	return course, nil
}

// AddLecture 在一个事务中创建讲座并更新课程统计
func (s *CourseService) AddLecture(ctx context.Context, actor model.Actor, courseID uuid.UUID, in LectureInput) (*model.Lecture, error) {
	if courseID == uuid.Nil {
		return nil, apperr.NotFound("Invalid course id")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" || (in.VideoURL == "" && in.Video == nil) {
		return nil, apperr.Validation("All fields are required")
	}
	if in.Order != nil && *in.Order < 0 {
		return nil, apperr.Validation("Order must be a positive number")
	}
	if in.Duration < 0 {
		return nil, apperr.Validation("Duration can not be negative")
	}

	// 视频先上传，事务失败时再删除
	videoURL, publicID := in.VideoURL, in.PublicID
	uploadedID := ""
	if in.Video != nil {
		url, id, err := s.upload(ctx, in.Video)
		if err != nil {
			return nil, err
		}
		videoURL, publicID, uploadedID = url, id, id
	}

	var lecture *model.Lecture
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		course, err := tx.Course.FindWithLecturesForUpdate(courseID)
		if err != nil {
			return err
		}
		if course == nil {
			return apperr.NotFound("Course not found")
		}
		if !actor.CanManage(course) {
			return apperr.Forbidden("You are not authorized to access this route")
		}
		if course.HasVideo(videoURL) {
			return apperr.Conflict("Lecture already exists")
		}

		order := len(course.Lectures)
		if in.Order != nil {
			order = *in.Order
		}
		lecture = &model.Lecture{
			Title:       title,
			Description: in.Description,
			VideoURL:    videoURL,
			PublicID:    publicID,
			Duration:    in.Duration,
			IsPreview:   in.IsPreview,
			Order:       order,
			CourseID:    course.ID,
		}
		if err := tx.Lecture.Create(lecture); err != nil {
			return err
		}

		course.AppendLecture(*lecture)
		return tx.Course.Save(course)
	})
	if err != nil {
		s.discard(ctx, uploadedID)
		if _, ok := apperr.From(err); ok {
			return nil, err
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Wrap(apperr.KindConflict, "Lecture already exists", err)
		}
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	s.invalidate()
	s.log.Info().Str("course_id", courseID.String()).Str("lecture_id", lecture.ID.String()).Msg("lecture added")
	return lecture, nil
}

// GetCourseLectures 已发布课程的讲座列表
func (s *CourseService) GetCourseLectures(ctx context.Context, courseID uuid.UUID) ([]model.Lecture, error) {
	if courseID == uuid.Nil {
		return nil, apperr.NotFound("Invalid course id")
	}
	repos := s.repos.WithContext(ctx)
	course, err := repos.Course.FindByID(courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, apperr.NotFound("Course not found")
	}
	if !course.IsPublished {
		return nil, apperr.Validation("Course is not published yet")
	}

	lectures, err := repos.Lecture.ListByCourse(courseID)
	if err != nil {
		return nil, err
	}
	if len(lectures) == 0 {
		return nil, apperr.NotFound("No lectures found")
	}
	return lectures, nil
}

// RateCourse 已报名用户评分，并在同一事务中刷新课程平均分
func (s *CourseService) RateCourse(ctx context.Context, actor model.Actor, courseID uuid.UUID, score int, comment string) (*model.Course, error) {
	if courseID == uuid.Nil {
		return nil, apperr.NotFound("Invalid course id")
	}
	if score < 1 || score > 5 {
		return nil, apperr.Validation("Rating must be between 1 and 5")
	}
	if len(comment) > 500 {
		return nil, apperr.Validation("Comment can not exceed 500 characters")
	}

	var course *model.Course
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		course, err = tx.Course.FindByID(courseID)
		if err != nil {
			return err
		}
		if course == nil {
			return apperr.NotFound("Course not found")
		}
		enrolled, err := tx.User.IsEnrolled(actor.ID, courseID)
		if err != nil {
			return err
		}
		if !enrolled {
			return apperr.Forbidden("You must be enrolled in this course to rate it")
		}

		if err := tx.Rating.Upsert(&model.Rating{UserID: actor.ID, CourseID: courseID, Rating: score, Comment: comment}); err != nil {
			return err
		}
		summary, err := tx.Rating.Summary(courseID)
		if err != nil {
			return err
		}
		course.ApplyRatingSummary(summary.Average, summary.Count)
		return tx.Course.UpdateRatingSummary(course)
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.invalidate()
	return course, nil
}
