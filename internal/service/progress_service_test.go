package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/repository"
	"github.com/user/lms/internal/testutil"
	"gorm.io/gorm"
)

type progressFixture struct {
	db       *gorm.DB
	svc      *ProgressService
	student  *model.User
	course   *model.Course
	lectures []model.Lecture
}

func newProgressFixture(t *testing.T, published bool, lectures int) *progressFixture {
	t.Helper()
	db := testutil.DB(t)
	instructor := testutil.SeedUser(t, db, model.RoleInstructor)
	course := testutil.SeedCourse(t, db, instructor, published)
	return &progressFixture{
		db:       db,
		svc:      NewProgressService(repository.NewRepositories(db), testutil.Logger(t)),
		student:  testutil.SeedUser(t, db, model.RoleStudent),
		course:   course,
		lectures: testutil.SeedLectures(t, db, course, lectures),
	}
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	e, ok := apperr.From(err)
	require.True(t, ok, "expected operational error, got %v", err)
	assert.Equal(t, kind, e.Kind, e.Message)
}

func TestGetProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("not started", func(t *testing.T) {
		f := newProgressFixture(t, true, 2)
		_, err := f.svc.GetProgress(ctx, f.student.ID, f.course.ID)
		assertKind(t, err, apperr.KindNotFound)
	})

	t.Run("incomplete course is not found", func(t *testing.T) {
		f := newProgressFixture(t, true, 2)
		testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true, false)
		_, err := f.svc.GetProgress(ctx, f.student.ID, f.course.ID)
		assertKind(t, err, apperr.KindNotFound)
	})

	t.Run("completed course touches last accessed", func(t *testing.T) {
		f := newProgressFixture(t, true, 2)
		seeded := testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true, true)
		later := seeded.LastAccessed.Add(time.Hour)
		f.svc.now = func() time.Time { return later }

		p, err := f.svc.GetProgress(ctx, f.student.ID, f.course.ID)
		require.NoError(t, err)
		assert.Equal(t, 100, p.CompletionPercentage)
		assert.True(t, p.IsCompleted)
		assert.WithinDuration(t, later, p.LastAccessed, time.Second)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newProgressFixture(t, true, 1)
		_, err := f.svc.GetProgress(ctx, uuid.New(), f.course.ID)
		assertKind(t, err, apperr.KindNotFound)
	})
}

func TestUpdateLectureProgress(t *testing.T) {
	ctx := context.Background()
	f := newProgressFixture(t, true, 3)
	testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true, false, false)

	_, err := f.svc.UpdateLectureProgress(ctx, f.student.ID, f.course.ID, uuid.New(), 10, time.Time{})
	assertKind(t, err, apperr.KindNotFound)

	_, err = f.svc.UpdateLectureProgress(ctx, f.student.ID, f.course.ID, f.lectures[1].ID, 10, time.Time{})
	assertKind(t, err, apperr.KindNotFound)

	watched := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	p, err := f.svc.UpdateLectureProgress(ctx, f.student.ID, f.course.ID, f.lectures[0].ID, 75, watched)
	require.NoError(t, err)
	assert.Equal(t, 33, p.CompletionPercentage)
	assert.False(t, p.IsCompleted)
	lp, ok := p.Lecture(f.lectures[0].ID)
	require.True(t, ok)
	assert.Equal(t, 75.0, lp.WatchTime)
	assert.True(t, lp.LastWatched.Equal(watched))
}

func TestUpdateLectureProgressIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newProgressFixture(t, true, 3)
	testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true, false, false)

	watched := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	first, err := f.svc.UpdateLectureProgress(ctx, f.student.ID, f.course.ID, f.lectures[0].ID, 75, watched)
	require.NoError(t, err)
	second, err := f.svc.UpdateLectureProgress(ctx, f.student.ID, f.course.ID, f.lectures[0].ID, 75, watched)
	require.NoError(t, err)

	assert.Equal(t, first.CompletionPercentage, second.CompletionPercentage)
	assert.Equal(t, 33, second.CompletionPercentage)
	assert.Len(t, second.LectureProgress, 3)

	var stored model.CourseProgress
	require.NoError(t, f.db.First(&stored, "user_id = ? AND course_id = ?", f.student.ID, f.course.ID).Error)
	assert.Len(t, stored.LectureProgress, 3)
	assert.Equal(t, 33, stored.CompletionPercentage)
}

// bumpProgressVersion 在进度更新前模拟并发写入，times 为负数时每次都写入
func bumpProgressVersion(t *testing.T, db *gorm.DB, times int) *int {
	t.Helper()
	bumped := 0
	err := db.Callback().Update().Before("gorm:update").Register("test:bump_progress_version", func(tx *gorm.DB) {
		if tx.Statement.Table != "course_progresses" || (times >= 0 && bumped >= times) {
			return
		}
		bumped++
		if err := db.Exec("UPDATE course_progresses SET version = version + 1").Error; err != nil {
			_ = tx.AddError(err)
		}
	})
	require.NoError(t, err)
	return &bumped
}

func TestProgressRetriesAfterLostUpdate(t *testing.T) {
	f := newProgressFixture(t, true, 3)
	testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true, false, false)
	bumped := bumpProgressVersion(t, f.db, 1)

	p, err := f.svc.UpdateLectureProgress(context.Background(), f.student.ID, f.course.ID, f.lectures[0].ID, 40, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, *bumped)
	assert.Equal(t, 33, p.CompletionPercentage)

	var stored model.CourseProgress
	require.NoError(t, f.db.First(&stored, "id = ?", p.ID).Error)
	lp, ok := stored.Lecture(f.lectures[0].ID)
	require.True(t, ok)
	assert.Equal(t, 40.0, lp.WatchTime)
}

func TestProgressConflictAfterRepeatedLostUpdates(t *testing.T) {
	f := newProgressFixture(t, true, 3)
	seeded := testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true, false, false)
	bumped := bumpProgressVersion(t, f.db, -1)

	_, err := f.svc.UpdateLectureProgress(context.Background(), f.student.ID, f.course.ID, f.lectures[0].ID, 40, time.Now())
	assertKind(t, err, apperr.KindConflict)
	assert.Equal(t, maxProgressAttempts, *bumped)

	var stored model.CourseProgress
	require.NoError(t, f.db.First(&stored, "id = ?", seeded.ID).Error)
	lp, ok := stored.Lecture(f.lectures[0].ID)
	require.True(t, ok)
	assert.NotEqual(t, 40.0, lp.WatchTime)
}

func TestUpdateLectureProgressHalfComplete(t *testing.T) {
	f := newProgressFixture(t, true, 4)
	testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true, true, false, false)

	p, err := f.svc.UpdateLectureProgress(context.Background(), f.student.ID, f.course.ID, f.lectures[1].ID, 30, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 50, p.CompletionPercentage)
	assert.False(t, p.IsCompleted)
}

func TestMarkCourseCompletedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newProgressFixture(t, true, 1)
	testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true)

	first, err := f.svc.MarkCourseCompleted(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	second, err := f.svc.MarkCourseCompleted(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)

	assert.Equal(t, first.IsCompleted, second.IsCompleted)
	assert.Equal(t, first.CompletionPercentage, second.CompletionPercentage)
	assert.Equal(t, 100, second.CompletionPercentage)
}

func TestMarkCourseCompletedRequiresCompletion(t *testing.T) {
	f := newProgressFixture(t, true, 2)
	testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true, false)

	_, err := f.svc.MarkCourseCompleted(context.Background(), f.student.ID, f.course.ID)
	assertKind(t, err, apperr.KindNotFound)
}

func TestResetProgressGating(t *testing.T) {
	ctx := context.Background()

	t.Run("published course", func(t *testing.T) {
		f := newProgressFixture(t, true, 2)
		testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true, false)
		_, err := f.svc.ResetProgress(ctx, f.student.ID, f.course.ID)
		assertKind(t, err, apperr.KindConflict)
	})

	t.Run("unpublished but completed", func(t *testing.T) {
		f := newProgressFixture(t, false, 2)
		testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true, true)
		_, err := f.svc.ResetProgress(ctx, f.student.ID, f.course.ID)
		assertKind(t, err, apperr.KindConflict)
	})

	t.Run("unpublished and incomplete", func(t *testing.T) {
		f := newProgressFixture(t, false, 2)
		testutil.SeedProgress(t, f.db, f.student, f.course, f.lectures, true, false)
		p, err := f.svc.ResetProgress(ctx, f.student.ID, f.course.ID)
		require.NoError(t, err)
		assert.Empty(t, p.LectureProgress)
		assert.Equal(t, 0, p.CompletionPercentage)
		assert.Equal(t, model.StateNotStarted, p.State())
	})
}

func TestRecordLectureViewCreatesProgress(t *testing.T) {
	ctx := context.Background()
	f := newProgressFixture(t, true, 3)

	p, err := f.svc.RecordLectureView(ctx, f.student.ID, f.course.ID, f.lectures[0].ID, 60, true)
	require.NoError(t, err)
	assert.Len(t, p.LectureProgress, 3)
	assert.Equal(t, 33, p.CompletionPercentage)
	assert.Equal(t, model.StateInProgress, p.State())

	// 已完成的讲座可以继续更新观看信息
	p, err = f.svc.UpdateLectureProgress(ctx, f.student.ID, f.course.ID, f.lectures[0].ID, 90, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 33, p.CompletionPercentage)

	for _, l := range f.lectures[1:] {
		p, err = f.svc.RecordLectureView(ctx, f.student.ID, f.course.ID, l.ID, 60, true)
		require.NoError(t, err)
	}
	assert.Equal(t, model.StateCompleted, p.State())

	got, err := f.svc.GetProgress(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.CompletionPercentage)
}

func TestRecordLectureViewRejectsForeignLecture(t *testing.T) {
	f := newProgressFixture(t, true, 1)
	other := testutil.SeedCourse(t, f.db, f.student, true)
	foreign := testutil.SeedLectures(t, f.db, other, 1)

	_, err := f.svc.RecordLectureView(context.Background(), f.student.ID, f.course.ID, foreign[0].ID, 10, true)
	assertKind(t, err, apperr.KindNotFound)
}

func TestStartCourseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newProgressFixture(t, true, 2)

	first, err := f.svc.StartCourse(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	second, err := f.svc.StartCourse(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.LectureProgress, 2)
	assert.Equal(t, 0, second.CompletionPercentage)

	list, err := f.svc.ListMyProgress(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStartCourseUnknownCourse(t *testing.T) {
	f := newProgressFixture(t, true, 0)
	_, err := f.svc.StartCourse(context.Background(), f.student.ID, uuid.New())
	assertKind(t, err, apperr.KindNotFound)
}
