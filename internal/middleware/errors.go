package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/swstarter/core/internal/pkg/response"
	"go.uber.org/zap"
)

const genericErrorMessage = "Something went wrong"

// Errors renders errors a handler attached with c.Error and did not answer itself,
// and recovers panics. The error text is only exposed when expose is set (development).
func Errors(log *zap.Logger, expose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic serving request",
					zap.Any("panic", r),
					zap.String("method", c.Request.Method),
					zap.String("url", c.Request.URL.String()),
					zap.Stack("stack"),
				)
				if !c.Writer.Written() {
					response.Problem(c, http.StatusInternalServerError, "", genericErrorMessage)
				}
			}
		}()

		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		log.Error("unhandled request error",
			zap.Error(last.Err),
			zap.String("method", c.Request.Method),
			zap.String("url", c.Request.URL.String()),
			zap.String("ip", c.ClientIP()),
		)
		msg := genericErrorMessage
		if expose {
			msg = last.Error()
		}
		response.Problem(c, http.StatusInternalServerError, "", msg)
	}
}
