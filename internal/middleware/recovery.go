package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/user/lms/internal/utils"
)

// Recovery 捕获 panic，返回 500 统一响应
func Recovery(log zerolog.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			log.Error().
				Interface("error", r).
				Str("request_id", c.Writer.Header().Get(requestIDHeader)).
				Bytes("stack", stack).
				Msg("panic recovered")

			body := utils.NewErrorResponse(http.StatusInternalServerError, internalMessage)
			if !production {
				body.Message = fmt.Sprint(r)
				body.Stack = string(stack)
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()
		c.Next()
	}
}
