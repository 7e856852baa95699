package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/reportextract/internal/logger"
	"github.com/timmy/reportextract/internal/service"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// abortWithError writes the error body the REST clients decode.
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": apiError{Code: code, Message: message}})
}

// abortWithServiceError maps service errors onto HTTP statuses.
func abortWithServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		abortWithError(c, http.StatusUnprocessableEntity, "InvalidRequest", err.Error())
	case errors.Is(err, service.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "NotFound", err.Error())
	default:
		logger.CtxError(c.Request.Context(), "Request failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, "InternalServerError", "internal server error")
	}
}
