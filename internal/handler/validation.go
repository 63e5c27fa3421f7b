package handler

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/model"
)

var (
	registerOnce sync.Once
	registerErr  error

	personName = regexp.MustCompile(`^[\p{L} .'-]+$`)
)

// RegisterValidators 注册自定义校验规则，可重复调用
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("gin validator engine is not validator/v10")
			return
		}

		// 错误信息使用 json/form 字段名
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})

		rules := map[string]validator.Func{
			"course_level":    func(fl validator.FieldLevel) bool { return model.Level(fl.Field().String()).Valid() },
			"currency":        func(fl validator.FieldLevel) bool { return model.ValidCurrency(fl.Field().String()) },
			"strong_password": func(fl validator.FieldLevel) bool { return StrongPassword(fl.Field().String()) },
			"person_name":     func(fl validator.FieldLevel) bool { return personName.MatchString(fl.Field().String()) },
			"payment_method":  func(fl validator.FieldLevel) bool { return model.PaymentMethod(fl.Field().String()).Valid() },
		}
		for tag, fn := range rules {
			if err := v.RegisterValidation(tag, fn); err != nil {
				registerErr = err
				return
			}
		}
	})
	return registerErr
}

// StrongPassword 至少 8 位，包含大小写字母、数字和特殊字符
func StrongPassword(s string) bool {
	if len(s) < 8 {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	return upper && lower && digit && special
}

// bindError 将绑定/校验错误转换为 400
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return apperr.Wrap(apperr.KindValidation, fieldMessage(ve[0]), err)
	}
	return apperr.Wrap(apperr.KindValidation, "Invalid request data", err)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Please provide a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s can not exceed %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s can not exceed %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "course_level":
		return "Level must be Beginner, Intermediate or Advanced"
	case "currency":
		return "Unsupported currency"
	case "strong_password":
		return "Password must contain at least one uppercase letter, one lowercase letter, one number and one special character"
	case "person_name":
		return "Name can only contain letters and spaces"
	case "payment_method":
		return "Unsupported payment method"
	}
	return fmt.Sprintf("%s is invalid", field)
}
