package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/middleware"
	"github.com/user/lms/internal/model"
	"github.com/user/lms/internal/utils"
)

type createOrderRequest struct {
	CourseID string `json:"courseId" binding:"required"`
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

type refundRequest struct {
	Reason string  `json:"reason" binding:"max=500"`
	Amount float64 `json:"amount" binding:"min=0"`
}

// CreateOrder 创建支付订单
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	courseID, ok := model.ParseID(req.CourseID)
	if !ok {
		fail(c, apperr.NotFound("Course not found"))
		return
	}

	result, err := h.Payments.CreateOrder(c.Request.Context(), middleware.GetUserID(c), courseID)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "Order created successfully", result)
}

// VerifyPayment 校验支付签名并报名
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "Payment verification failed", err))
		return
	}

	courseID, err := h.Payments.VerifyPayment(c.Request.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		fail(c, err)
		return
	}
	utils.SuccessWith(c, "Payment verified successfully", nil, gin.H{"courseId": courseID})
}

// Purchases 购买记录
func (h *Handler) Purchases(c *gin.Context) {
	list, err := h.Payments.ListPurchases(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "", list)
}

// RefundPurchase 申请退款
func (h *Handler) RefundPurchase(c *gin.Context) {
	purchaseID, ok := pathID(c, "purchaseId", "Purchase record not found")
	if !ok {
		return
	}
	var req refundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, bindError(err))
			return
		}
	}

	purchase, err := h.Payments.RefundPurchase(c.Request.Context(), middleware.GetUserID(c), purchaseID, req.Reason, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, "Refund processed successfully", purchase)
}
