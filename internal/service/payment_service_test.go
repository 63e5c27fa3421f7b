package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/payment"
	"github.com/user/lms/internal/repository"
	"github.com/user/lms/internal/testutil"
	"gorm.io/gorm"
)

const gatewaySecret = "test_secret"

type paymentFixture struct {
	db      *gorm.DB
	repos   *repository.Repositories
	gateway *fakeGateway
	svc     *PaymentService
	student *model.User
	course  *model.Course
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	db := testutil.DB(t)
	repos := repository.NewRepositories(db)
	gateway := &fakeGateway{secret: gatewaySecret}
	instructor := testutil.SeedUser(t, db, model.RoleInstructor)
	return &paymentFixture{
		db:      db,
		repos:   repos,
		gateway: gateway,
		svc:     NewPaymentService(repos, gateway, "", testutil.Logger(t)),
		student: testutil.SeedUser(t, db, model.RoleStudent),
		course:  testutil.SeedCourse(t, db, instructor, true),
	}
}

func TestCreateOrder(t *testing.T) {
	f := newPaymentFixture(t)

	result, err := f.svc.CreateOrder(context.Background(), f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, "rzp_test_key", result.KeyID)
	assert.Equal(t, f.course.Title, result.Course.Name)

	require.Len(t, f.gateway.orders, 1)
	req := f.gateway.orders[0]
	assert.Equal(t, int64(49900), req.Amount)
	assert.Equal(t, "INR", req.Currency)
	assert.Contains(t, req.Receipt, "rcpt_")
	assert.Equal(t, f.course.ID.String(), req.Notes["course_id"])

	purchase, err := f.repos.Purchase.FindByPaymentID(result.Order.ID)
	require.NoError(t, err)
	require.NotNil(t, purchase)
	assert.Equal(t, model.PurchasePending, purchase.Status)
	assert.Equal(t, 499.0, purchase.Amount)
	assert.Equal(t, req.Receipt, purchase.Metadata["receipt"])
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	f := newPaymentFixture(t)
	f.gateway.err = errors.New("gateway down")

	_, err := f.svc.CreateOrder(context.Background(), f.student.ID, f.course.ID)
	assertKind(t, err, apperr.KindInternal)
}

func TestCreateOrderAlreadyEnrolled(t *testing.T) {
	f := newPaymentFixture(t)
	testutil.Enroll(t, f.db, f.student, f.course)

	_, err := f.svc.CreateOrder(context.Background(), f.student.ID, f.course.ID)
	assertKind(t, err, apperr.KindConflict)
	assert.Empty(t, f.gateway.orders)
}

func TestVerifyPaymentEnrolls(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture(t)

	result, err := f.svc.CreateOrder(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	orderID := result.Order.ID
	sig := payment.Sign(gatewaySecret, orderID, "pay_1")

	courseID, err := f.svc.VerifyPayment(ctx, orderID, "pay_1", sig)
	require.NoError(t, err)
	assert.Equal(t, f.course.ID, courseID)

	enrolled, err := f.repos.User.IsEnrolled(f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.True(t, enrolled)

	purchase, err := f.repos.Purchase.FindByPaymentID(orderID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseCompleted, purchase.Status)
	assert.Equal(t, "pay_1", purchase.GatewayPaymentID)

	// 重复回调不报错
	_, err = f.svc.VerifyPayment(ctx, orderID, "pay_1", sig)
	require.NoError(t, err)
}

func TestVerifyPaymentRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture(t)

	result, err := f.svc.CreateOrder(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)

	_, err = f.svc.VerifyPayment(ctx, result.Order.ID, "pay_1", payment.Sign("wrong", result.Order.ID, "pay_1"))
	assertKind(t, err, apperr.KindValidation)

	_, err = f.svc.VerifyPayment(ctx, result.Order.ID, "pay_1", "")
	assertKind(t, err, apperr.KindValidation)

	enrolled, err := f.repos.User.IsEnrolled(f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)
}

func TestVerifyPaymentUnknownOrder(t *testing.T) {
	f := newPaymentFixture(t)
	_, err := f.svc.VerifyPayment(context.Background(), "order_missing", "pay_1", payment.Sign(gatewaySecret, "order_missing", "pay_1"))
	assertKind(t, err, apperr.KindNotFound)
}

func TestRefundPurchase(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture(t)

	result, err := f.svc.CreateOrder(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)

	// 未完成的订单不可退款
	_, err = f.svc.RefundPurchase(ctx, f.student.ID, result.PurchaseID, "changed my mind", 0)
	assertKind(t, err, apperr.KindConflict)

	_, err = f.svc.VerifyPayment(ctx, result.Order.ID, "pay_1", payment.Sign(gatewaySecret, result.Order.ID, "pay_1"))
	require.NoError(t, err)

	other := testutil.SeedUser(t, f.db, model.RoleStudent)
	_, err = f.svc.RefundPurchase(ctx, other.ID, result.PurchaseID, "not mine", 0)
	assertKind(t, err, apperr.KindForbidden)

	refunded, err := f.svc.RefundPurchase(ctx, f.student.ID, result.PurchaseID, "changed my mind", 0)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseRefunded, refunded.Status)
	assert.Equal(t, 499.0, refunded.RefundAmount)
	assert.Contains(t, refunded.RefundID, "rfnd_")

	enrolled, err := f.repos.User.IsEnrolled(f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)

	purchases, err := f.svc.ListPurchases(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, model.PurchaseRefunded, purchases[0].Status)
}

func TestRefundWindowExpired(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture(t)

	result, err := f.svc.CreateOrder(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	_, err = f.svc.VerifyPayment(ctx, result.Order.ID, "pay_1", payment.Sign(gatewaySecret, result.Order.ID, "pay_1"))
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(model.RefundWindow + time.Hour) }
	_, err = f.svc.RefundPurchase(ctx, f.student.ID, result.PurchaseID, "too late", 0)
	assertKind(t, err, apperr.KindConflict)
}

func TestVerifyPaymentReplayAfterRefund(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture(t)

	result, err := f.svc.CreateOrder(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	orderID := result.Order.ID
	sig := payment.Sign(gatewaySecret, orderID, "pay_1")

	_, err = f.svc.VerifyPayment(ctx, orderID, "pay_1", sig)
	require.NoError(t, err)
	_, err = f.svc.RefundPurchase(ctx, f.student.ID, result.PurchaseID, "changed my mind", 0)
	require.NoError(t, err)

	// 退款后重放同一个已签名的回调
	_, err = f.svc.VerifyPayment(ctx, orderID, "pay_1", sig)
	assertKind(t, err, apperr.KindConflict)

	enrolled, err := f.repos.User.IsEnrolled(f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.False(t, enrolled)

	purchase, err := f.repos.Purchase.FindByPaymentID(orderID)
	require.NoError(t, err)
	assert.Equal(t, model.PurchaseRefunded, purchase.Status)
	assert.Equal(t, 499.0, purchase.RefundAmount)
}

func TestVerifyPaymentAfterCleanupFailed(t *testing.T) {
	ctx := context.Background()
	f := newPaymentFixture(t)

	result, err := f.svc.CreateOrder(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.CoursePurchase{}).
		Where("id = ?", result.PurchaseID).
		Update("status", model.PurchaseFailed).Error)

	_, err = f.svc.VerifyPayment(ctx, result.Order.ID, "pay_late", payment.Sign(gatewaySecret, result.Order.ID, "pay_late"))
	require.NoError(t, err)

	enrolled, err := f.repos.User.IsEnrolled(f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.True(t, enrolled)
}
