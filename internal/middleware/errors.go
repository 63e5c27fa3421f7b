package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/user/lms/internal/apperr"
	"github.com/user/lms/internal/utils"
)

const internalMessage = "Something went wrong"

// abort 记录错误并中断，由 ErrorHandler 输出响应
func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandler 将 c.Errors 中最后一个错误渲染为统一响应。
// 生产环境隐藏非业务错误的细节，开发环境附带调用栈。
func ErrorHandler(log zerolog.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		Render(c, log, production, c.Errors.Last().Err)
	}
}

// Render 输出错误响应
func Render(c *gin.Context, log zerolog.Logger, production bool, err error) {
	status := http.StatusInternalServerError
	message := internalMessage
	var stack []byte

	if e, ok := apperr.From(err); ok {
		status = e.Status
		message = e.Message
		if message == "" {
			message = e.Error()
		}
		stack = e.Stack
	} else {
		stack = debug.Stack()
		if !production {
			message = err.Error()
		}
	}

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Int("status", status).
		Str("path", c.Request.URL.Path).
		Str("request_id", c.Writer.Header().Get(requestIDHeader)).
		Msg("request failed")

	body := utils.NewErrorResponse(status, message)
	if !production {
		body.Stack = string(stack)
	}
	c.AbortWithStatusJSON(status, body)
}
