// Package handler holds the gin HTTP handlers. Handlers validate input, call
// services, and translate service errors to HTTP codes; no business rules
// live here.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stageflow/internal/progression"
	"stageflow/internal/repository"
	"stageflow/internal/service"
)

// respondError maps service and repository errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	var conflictErr *service.DateConflictError
	if errors.As(err, &conflictErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "date validation failed",
			"conflicts": conflictErr.Conflicts,
		})
		return
	}

	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, progression.ErrNoSuchStage),
		errors.Is(err, progression.ErrNoSuchSubstage),
		errors.Is(err, service.ErrSubstageGone):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, progression.ErrStageLocked),
		errors.Is(err, progression.ErrStageOutOfOrder),
		errors.Is(err, progression.ErrSubstagesIncomplete),
		errors.Is(err, progression.ErrStageNotFrontier),
		errors.Is(err, progression.ErrStageNotCompleted),
		errors.Is(err, progression.ErrSubstageOutOfOrder),
		errors.Is(err, progression.ErrSubstageNotFrontier),
		errors.Is(err, service.ErrAlreadyCompleted),
		errors.Is(err, service.ErrNotPendingVerify),
		errors.Is(err, service.ErrExtensionPending),
		errors.Is(err, service.ErrNoPendingExtension),
		errors.Is(err, service.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrNotAssignee):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrNoStages),
		errors.Is(err, service.ErrInvalidPriority):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
