package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/diaryprint/internal/core"
	"github.com/orrn/diaryprint/internal/logger"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, core.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "upstream_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

func respondError(c *gin.Context, base *slog.Logger, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), base).Error("request failed", "path", c.FullPath(), "error", err)
		message = "Internal server error"
	}
	c.JSON(status, ErrorResponse{
		Success: false,
		Error:   code,
		Message: message,
	})
}

func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error:   "validation_error",
		Message: err.Error(),
	})
}
