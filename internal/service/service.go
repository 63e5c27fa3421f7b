package service

import (
	"context"
	"errors"
	"time"

	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/payment"
	"github.com/user/lms/internal/storage"
	"gorm.io/gorm"
)

// MediaStore 媒体存储
type MediaStore interface {
	UploadFile(ctx context.Context, path, contentType string) (*storage.Upload, error)
	Delete(ctx context.Context, publicID string) error
}

// PaymentGateway 支付网关
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

// FileUpload 已保存到临时目录的上传文件
type FileUpload struct {
	Path        string
	ContentType string
}

// Clock 可替换的时间源
type Clock func() time.Time

// storeError 将存储层错误转换为业务错误，未知错误原样返回
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.KindConflict, "Duplicate field value entered", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Wrap(apperr.KindNotFound, "Resource not found", err)
	}
	return err
}
