package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/payment"
	"github.com/user/lms/internal/repository"
	"gorm.io/datatypes"
)

// OrderResult 创建订单返回给前端的内容
type OrderResult struct {
	Order      *payment.Order  `json:"order"`
	KeyID      string          `json:"keyId"`
	PurchaseID uuid.UUID       `json:"purchaseId"`
	Course     OrderCourseInfo `json:"course"`
}

// OrderCourseInfo 结账页展示的课程信息
type OrderCourseInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PaymentService 课程购买
type PaymentService struct {
	repos    *repository.Repositories
	gateway  PaymentGateway
	currency string
	log      zerolog.Logger
	now      Clock
}

// NewPaymentService 创建支付服务
func NewPaymentService(repos *repository.Repositories, gateway PaymentGateway, currency string, log zerolog.Logger) *PaymentService {
	if currency == "" {
		currency = "INR"
	}
	return &PaymentService{repos: repos, gateway: gateway, currency: currency, log: log, now: time.Now}
}

// CreateOrder 为课程创建网关订单并记录待支付购买
func (s *PaymentService) CreateOrder(ctx context.Context, userID, courseID uuid.UUID) (*OrderResult, error) {
	if courseID == uuid.Nil {
		return nil, apperr.NotFound("Course not found")
	}
	repos := s.repos.WithContext(ctx)

	course, err := repos.Course.FindByID(courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, apperr.NotFound("Course not found")
	}
	enrolled, err := repos.User.IsEnrolled(userID, courseID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, apperr.Conflict("You are already enrolled in this course")
	}

	purchase := &model.CoursePurchase{
		CourseID:      course.ID,
		UserID:        userID,
		Amount:        course.Price,
		Currency:      s.currency,
		Status:        model.PurchasePending,
		PaymentMethod: model.PaymentCard,
	}

	order, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   purchase.AmountInSubunits(),
		Currency: s.currency,
		Receipt:  "rcpt_" + ksuid.New().String(),
		Notes: map[string]string{
			"course_id": course.ID.String(),
			"user_id":   userID.String(),
		},
	})
	if err != nil {
		s.log.Error().Err(err).Str("course_id", course.ID.String()).Msg("create gateway order failed")
		return nil, apperr.Wrap(apperr.KindInternal, "Error creating order", err)
	}

	purchase.PaymentID = order.ID
	purchase.Metadata = datatypes.JSONMap{"receipt": order.Receipt}
	if err := repos.Purchase.Create(purchase); err != nil {
		return nil, storeError(err)
	}

	return &OrderResult{
		Order:      order,
		KeyID:      s.gateway.KeyID(),
		PurchaseID: purchase.ID,
		Course:     OrderCourseInfo{Name: course.Title, Description: course.Description},
	}, nil
}

// VerifyPayment 校验签名，完成购买并报名课程
func (s *PaymentService) VerifyPayment(ctx context.Context, orderID, paymentID, signature string) (uuid.UUID, error) {
	if orderID == "" || paymentID == "" || signature == "" {
		return uuid.Nil, apperr.Validation("Payment verification failed")
	}
	if !s.gateway.VerifySignature(orderID, paymentID, signature) {
		return uuid.Nil, apperr.Validation("Payment verification failed")
	}

	var courseID uuid.UUID
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		purchase, err := tx.Purchase.FindByPaymentID(orderID)
		if err != nil {
			return err
		}
		if purchase == nil {
			return apperr.NotFound("Purchase record not found")
		}

		courseID = purchase.CourseID
		changed, err := purchase.Complete(paymentID)
		if err != nil {
			return apperr.Conflict("Course purchase has already been refunded")
		}
		if !changed {
			return nil
		}
		if err := tx.Purchase.Save(purchase); err != nil {
			return err
		}
		return tx.User.Enroll(purchase.UserID, purchase.CourseID, s.now())
	})
	if err != nil {
		return uuid.Nil, storeError(err)
	}

	s.log.Info().Str("order_id", orderID).Str("course_id", courseID.String()).Msg("payment verified")
	return courseID, nil
}

// RefundPurchase 30 天内的已完成订单可退款，退款后取消报名
func (s *PaymentService) RefundPurchase(ctx context.Context, userID, purchaseID uuid.UUID, reason string, amount float64) (*model.CoursePurchase, error) {
	if purchaseID == uuid.Nil {
		return nil, apperr.NotFound("Purchase record not found")
	}

	var purchase *model.CoursePurchase
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		purchase, err = tx.Purchase.FindByID(purchaseID)
		if err != nil {
			return err
		}
		if purchase == nil {
			return apperr.NotFound("Purchase record not found")
		}
		if purchase.UserID != userID {
			return apperr.Forbidden("You are not authorized to access this route")
		}
		if err := purchase.ProcessRefund("rfnd_"+ksuid.New().String(), reason, amount, s.now()); err != nil {
			return apperr.Conflict("Course purchase is not refundable")
		}
		if err := tx.Purchase.Save(purchase); err != nil {
			return err
		}
		return tx.User.Unenroll(purchase.UserID, purchase.CourseID)
	})
	if err != nil {
		return nil, storeError(err)
	}
	return purchase, nil
}

// ListPurchases 当前用户的购买记录
func (s *PaymentService) ListPurchases(ctx context.Context, userID uuid.UUID) ([]model.CoursePurchase, error) {
	return s.repos.WithContext(ctx).Purchase.ListByUser(userID)
}
