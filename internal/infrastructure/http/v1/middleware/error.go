package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medstock/internal/core/apperror"
	appctx "medstock/internal/core/context"
	"medstock/internal/infrastructure/http/v1/dto"
	"medstock/pkg/logger"
)

// ErrorHandler middleware renders errors as {error, code, details}.
// Internal causes are logged, never returned.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}

			c.JSON(appErr.HTTPStatus, dto.ErrorResponse{
				Error:   appErr.Message,
				Code:    appErr.Code,
				Details: appErr.Details,
			})
			return
		}

		logger.Error(c.Request.Context(), "unhandled error",
			"error", err,
		)

		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "Internal server error",
			Code:  apperror.CodeInternal,
			Details: map[string]any{
				"request_id": appctx.GetRequestID(c.Request.Context()),
			},
		})
	}
}
