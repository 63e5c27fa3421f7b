package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/repository"
	"gorm.io/gorm"
)

const maxProgressAttempts = 3

const (
	msgNotStarted        = "You have not started this course yet"
	msgCourseIncomplete  = "You have not completed this course"
	msgLectureNotStarted = "You have not started this lecture yet"
	msgLectureIncomplete = "You have not completed this lecture"
)

// ProgressService 学习进度聚合
type ProgressService struct {
	repos *repository.Repositories
	log   zerolog.Logger
	now   Clock
}

// NewProgressService 创建进度服务
func NewProgressService(repos *repository.Repositories, log zerolog.Logger) *ProgressService {
	return &ProgressService{repos: repos, log: log, now: time.Now}
}

// progressMutation 修改进度，返回错误时不会保存
type progressMutation func(repos *repository.Repositories, p *model.CourseProgress) error

func (s *ProgressService) requireUser(repos *repository.Repositories, userID uuid.UUID) error {
	user, err := repos.User.FindByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return apperr.NotFound("User not found")
	}
	return nil
}

// mutate 读取-修改-按版本保存，版本冲突时重试
func (s *ProgressService) mutate(ctx context.Context, userID, courseID uuid.UUID, fn progressMutation) (*model.CourseProgress, error) {
	if courseID == uuid.Nil {
		return nil, apperr.NotFound("Invalid course id")
	}
	repos := s.repos.WithContext(ctx)
	if err := s.requireUser(repos, userID); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxProgressAttempts; attempt++ {
		p, err := repos.Progress.Find(userID, courseID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, apperr.NotFound(msgNotStarted)
		}
		if err := fn(repos, p); err != nil {
			return nil, err
		}

		err = repos.Progress.Save(p)
		if errors.Is(err, repository.ErrStaleProgress) {
			s.log.Debug().Str("user_id", userID.String()).Str("course_id", courseID.String()).Int("attempt", attempt).Msg("stale course progress, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, apperr.Conflict("Course progress was updated by another request, please try again")
}

// GetProgress 获取已完成课程的进度并刷新访问时间
func (s *ProgressService) GetProgress(ctx context.Context, userID, courseID uuid.UUID) (*model.CourseProgress, error) {
	return s.mutate(ctx, userID, courseID, func(_ *repository.Repositories, p *model.CourseProgress) error {
		if !p.IsCompleted {
			return apperr.NotFound(msgCourseIncomplete)
		}
		p.Touch(s.now())
		return nil
	})
}

// UpdateLectureProgress 更新已完成讲座的观看时长和时间
func (s *ProgressService) UpdateLectureProgress(ctx context.Context, userID, courseID, lectureID uuid.UUID, watchTime float64, lastWatched time.Time) (*model.CourseProgress, error) {
	if lectureID == uuid.Nil {
		return nil, apperr.NotFound("Invalid lecture id")
	}
	if watchTime < 0 {
		return nil, apperr.Validation("Watch time can not be negative")
	}
	now := s.now()
	if lastWatched.IsZero() {
		lastWatched = now
	}

	return s.mutate(ctx, userID, courseID, func(_ *repository.Repositories, p *model.CourseProgress) error {
		switch err := p.CompleteLecture(lectureID, watchTime, lastWatched); {
		case errors.Is(err, model.ErrLectureNotStarted):
			return apperr.NotFound(msgLectureNotStarted)
		case errors.Is(err, model.ErrLectureNotCompleted):
			return apperr.NotFound(msgLectureIncomplete)
		case err != nil:
			return err
		}
		p.Touch(now)
		return nil
	})
}

// MarkCourseCompleted 确认课程已完成，可重复调用
func (s *ProgressService) MarkCourseCompleted(ctx context.Context, userID, courseID uuid.UUID) (*model.CourseProgress, error) {
	return s.mutate(ctx, userID, courseID, func(_ *repository.Repositories, p *model.CourseProgress) error {
		if err := p.ConfirmCompleted(); err != nil {
			return apperr.NotFound(msgCourseIncomplete)
		}
		p.Touch(s.now())
		return nil
	})
}

// ResetProgress 重置未发布且未完成课程的进度
func (s *ProgressService) ResetProgress(ctx context.Context, userID, courseID uuid.UUID) (*model.CourseProgress, error) {
	return s.mutate(ctx, userID, courseID, func(repos *repository.Repositories, p *model.CourseProgress) error {
		course, err := repos.Course.FindByID(courseID)
		if err != nil {
			return err
		}
		if course == nil {
			return apperr.NotFound("Course not found")
		}

		switch err := p.Reset(course.IsPublished); {
		case errors.Is(err, model.ErrCoursePublished):
			return apperr.Conflict("This course is already been published")
		case errors.Is(err, model.ErrAlreadyCompleted):
			return apperr.Conflict("You have already completed this course")
		case err != nil:
			return err
		}
		p.Touch(s.now())
		return nil
	})
}

// StartCourse 开始学习，进度不存在时创建，已存在时补齐新讲座
func (s *ProgressService) StartCourse(ctx context.Context, userID, courseID uuid.UUID) (*model.CourseProgress, error) {
	lectureIDs, err := s.courseLectureIDs(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureProgress(ctx, userID, courseID, lectureIDs); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, courseID, func(_ *repository.Repositories, p *model.CourseProgress) error {
		p.Start(lectureIDs, s.now())
		return nil
	})
}

// RecordLectureView 记录观看，首次观看时自动创建进度
func (s *ProgressService) RecordLectureView(ctx context.Context, userID, courseID, lectureID uuid.UUID, watchTime float64, completed bool) (*model.CourseProgress, error) {
	if lectureID == uuid.Nil {
		return nil, apperr.NotFound("Invalid lecture id")
	}
	if watchTime < 0 {
		return nil, apperr.Validation("Watch time can not be negative")
	}

	lectureIDs, err := s.courseLectureIDs(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !containsID(lectureIDs, lectureID) {
		return nil, apperr.NotFound("Lecture not found")
	}
	if err := s.ensureProgress(ctx, userID, courseID, lectureIDs); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, courseID, func(_ *repository.Repositories, p *model.CourseProgress) error {
		now := s.now()
		p.Start(lectureIDs, now)
		p.RecordLectureWatch(lectureID, watchTime, now, completed)
		return nil
	})
}

// ListMyProgress 当前用户的全部课程进度
func (s *ProgressService) ListMyProgress(ctx context.Context, userID uuid.UUID) ([]model.CourseProgress, error) {
	return s.repos.WithContext(ctx).Progress.ListByUser(userID)
}

func (s *ProgressService) courseLectureIDs(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error) {
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
	return repos.Lecture.IDsByCourse(courseID)
}

// ensureProgress 并发创建时以先写入者为准
func (s *ProgressService) ensureProgress(ctx context.Context, userID, courseID uuid.UUID, lectureIDs []uuid.UUID) error {
	repos := s.repos.WithContext(ctx)
	if err := s.requireUser(repos, userID); err != nil {
		return err
	}
	existing, err := repos.Progress.Find(userID, courseID)
	if err != nil || existing != nil {
		return err
	}

	now := s.now()
	p := model.NewCourseProgress(userID, courseID, now)
	p.Start(lectureIDs, now)
	if err := repos.Progress.Create(p); err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	return nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
