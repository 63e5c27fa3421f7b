package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/repository"
	"github.com/user/lms/internal/testutil"
)

func TestCleanupRunOnce(t *testing.T) {
	db := testutil.DB(t)
	repos := repository.NewRepositories(db)
	instructor := testutil.SeedUser(t, db, model.RoleInstructor)
	student := testutil.SeedUser(t, db, model.RoleStudent)
	course := testutil.SeedCourse(t, db, instructor, true)

	stale := &model.CoursePurchase{CourseID: course.ID, UserID: student.ID, Amount: 10, Status: model.PurchasePending, PaymentID: "order_stale"}
	fresh := &model.CoursePurchase{CourseID: course.ID, UserID: student.ID, Amount: 10, Status: model.PurchasePending, PaymentID: "order_fresh"}
	require.NoError(t, repos.Purchase.Create(stale))
	require.NoError(t, repos.Purchase.Create(fresh))
	require.NoError(t, db.Model(stale).Update("created_at", time.Now().Add(-48*time.Hour)).Error)

	_, err := student.GenerateResetToken(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, repos.User.Save(student))

	svc := NewCleanupService(repos, testutil.Logger(t))
	report := svc.RunOnce(context.Background())
	assert.Equal(t, int64(1), report.FailedPurchases)
	assert.Equal(t, int64(1), report.ClearedResetTokens)

	got, err := repos.Purchase.FindByPaymentID("order_stale")
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseFailed, got.Status)

	got, err = repos.Purchase.FindByPaymentID("order_fresh")
	require.NoError(t, err)
	assert.Equal(t, model.PurchasePending, got.Status)

	again := svc.RunOnce(context.Background())
	assert.Zero(t, again.FailedPurchases)
	assert.Zero(t, again.ClearedResetTokens)
}

func TestCleanupStartStop(t *testing.T) {
	svc := NewCleanupService(testutil.Repos(t), testutil.Logger(t))
	require.NoError(t, svc.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.Stop(ctx)
}
