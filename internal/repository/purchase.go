package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/user/lms/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PurchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Create 创建购买记录
func (r *PurchaseRepository) Create(purchase *model.CoursePurchase) error {
	return r.db.Omit(clause.Associations).Create(purchase).Error
}

// FindByPaymentID 根据网关订单号查找
func (r *PurchaseRepository) FindByPaymentID(paymentID string) (*model.CoursePurchase, error) {
	var purchase model.CoursePurchase
	err := r.db.Where("payment_id = ?", paymentID).First(&purchase).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// FindByID 根据 ID 查找
func (r *PurchaseRepository) FindByID(id uuid.UUID) (*model.CoursePurchase, error) {
	var purchase model.CoursePurchase
	err := r.db.First(&purchase, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// ListByUser 用户购买记录
func (r *PurchaseRepository) ListByUser(userID uuid.UUID) ([]model.CoursePurchase, error) {
	var list []model.CoursePurchase
	err := r.db.Where("user_id = ?", userID).
		Preload("Course").
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

// Save 保存购买记录
func (r *PurchaseRepository) Save(purchase *model.CoursePurchase) error {
	return r.db.Omit(clause.Associations).Save(purchase).Error
}

// FailStalePending 超时未支付的订单标记为失败
func (r *PurchaseRepository) FailStalePending(before time.Time) (int64, error) {
	result := r.db.Model(&model.CoursePurchase{}).
		Where("status = ? AND created_at < ?", model.PurchasePending, before).
		Update("status", model.PurchaseFailed)
	return result.RowsAffected, result.Error
}
