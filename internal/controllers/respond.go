package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/workloadinsights/backend/internal/database"
)

// bindAndValidate decodes the JSON body and runs its Validate method, if any.
// It writes the 400 response itself and reports whether the handler may continue.
func bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	if v, ok := req.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			respondValidation(c, err)
			return false
		}
	}
	return true
}

func respondValidation(c *gin.Context, err error) {
	var fields validation.Errors
	if errors.As(err, &fields) {
		out := make(gin.H, len(fields))
		for k, v := range fields {
			out[k] = v.Error()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": out})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// respondDBError maps storage errors onto status codes. Unexpected errors are
// logged and hidden behind a generic message.
func respondDBError(c *gin.Context, logger *zap.Logger, err error, notFound string) {
	switch {
	case database.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case database.IsUniqueViolation(err):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case database.IsForeignKeyViolation(err):
		c.JSON(http.StatusConflict, gin.H{"error": "still referenced by other records"})
	default:
		respondInternal(c, logger, err)
	}
}

func respondInternal(c *gin.Context, logger *zap.Logger, err error) {
	if logger != nil {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
