package model

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PurchaseStatus 订单状态
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

// PaymentMethod 支付方式
type PaymentMethod string

const (
	PaymentCard       PaymentMethod = "card"
	PaymentPaypal     PaymentMethod = "paypal"
	PaymentNetBanking PaymentMethod = "net-banking"
	PaymentUPI        PaymentMethod = "upi"
	PaymentWallet     PaymentMethod = "wallet"
	PaymentCash       PaymentMethod = "cash"
)

// Valid 是否为支持的支付方式
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentPaypal, PaymentNetBanking, PaymentUPI, PaymentWallet, PaymentCash:
		return true
	}
	return false
}

// Currencies 支持的币种
var Currencies = map[string]struct{}{
	"USD": {}, "INR": {}, "EUR": {}, "GBP": {}, "JPY": {}, "BRL": {}, "AUD": {},
	"CAD": {}, "CHF": {}, "CNY": {}, "DKK": {}, "HKD": {}, "IDR": {}, "ILS": {},
	"KRW": {}, "MXN": {}, "MYR": {}, "NOK": {}, "NZD": {}, "PHP": {}, "PLN": {},
	"RUB": {}, "SEK": {}, "SGD": {}, "THB": {}, "TRY": {}, "ZAR": {},
}

// ValidCurrency 是否为支持的币种
func ValidCurrency(code string) bool {
	_, ok := Currencies[code]
	return ok
}

const RefundWindow = 30 * 24 * time.Hour

var (
	ErrNotRefundable    = errors.New("course purchase is not refundable")
	ErrPurchaseRefunded = errors.New("course purchase has been refunded")
)

// CoursePurchase 课程购买记录
type CoursePurchase struct {
	Base
	CourseID         uuid.UUID         `json:"course" gorm:"type:uuid;not null;index:idx_purchase_course_user"`
	Course           *Course           `json:"courseDetail,omitempty"`
	UserID           uuid.UUID         `json:"user" gorm:"type:uuid;not null;index:idx_purchase_course_user"`
	Amount           float64           `json:"amount" gorm:"not null;check:amount >= 0"`
	Currency         string            `json:"currency" gorm:"size:3;not null;default:INR"`
	Status           PurchaseStatus    `json:"status" gorm:"size:20;not null;default:pending;index"`
	PaymentMethod    PaymentMethod     `json:"paymentMethod" gorm:"size:20;not null;default:card"`
	PaymentID        string            `json:"paymentId" gorm:"uniqueIndex;not null"`
	GatewayPaymentID string            `json:"gatewayPaymentId,omitempty"`
	RefundID         string            `json:"refundId,omitempty"`
	RefundAmount     float64           `json:"refundAmount,omitempty" gorm:"check:refund_amount >= 0"`
	RefundReason     string            `json:"refundReason,omitempty"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
}

// Complete 标记支付成功。pending 和被清理任务标记为 failed 的晚到支付可以完成；
// 已完成时返回 false，已退款的订单不能再次完成
func (p *CoursePurchase) Complete(gatewayPaymentID string) (bool, error) {
	switch p.Status {
	case PurchaseCompleted:
		return false, nil
	case PurchasePending, PurchaseFailed:
		p.Status = PurchaseCompleted
		p.GatewayPaymentID = gatewayPaymentID
		return true, nil
	}
	return false, ErrPurchaseRefunded
}

// IsRefundable 已完成且购买未超过 30 天
func (p *CoursePurchase) IsRefundable(now time.Time) bool {
	if p.Status != PurchaseCompleted {
		return false
	}
	return now.Sub(p.CreatedAt) <= RefundWindow
}

// ProcessRefund 标记退款，amount <= 0 时全额退款
func (p *CoursePurchase) ProcessRefund(refundID, reason string, amount float64, now time.Time) error {
	if !p.IsRefundable(now) {
		return ErrNotRefundable
	}
	if amount <= 0 || amount > p.Amount {
		amount = p.Amount
	}
	p.Status = PurchaseRefunded
	p.RefundID = refundID
	p.RefundAmount = amount
	p.RefundReason = reason
	return nil
}

// AmountInSubunits 金额换算为最小货币单位（如 paise）
func (p *CoursePurchase) AmountInSubunits() int64 {
	return ToSubunits(p.Amount)
}

// ToSubunits 元转分，四舍五入
func ToSubunits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
