package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"schoolattend/internal/domain"
	"schoolattend/internal/httpmiddleware"
)

func apiErr(code domain.Code, msg string) gin.H {
	return gin.H{"error": domain.Error{Code: code, Message: msg}}
}

// writeErr renders err with its mapped status. Errors without a domain code
// are logged and masked.
func writeErr(c *gin.Context, err error) {
	status := domain.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		httpmiddleware.Logger(c).Error("request failed",
			zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(status, apiErr(domain.CodeInternal, "internal server error"))
		return
	}
	c.JSON(status, apiErr(domain.CodeOf(err), messageOf(err)))
}

func messageOf(err error) string {
	var e *domain.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, apiErr(domain.CodeInvalidArgument, "invalid request body: "+err.Error()))
}
