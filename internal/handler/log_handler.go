package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stageflow/internal/service"
	"stageflow/pkg/rbac"
)

type LogHandler struct {
	logSync   *service.LogSynchronizer
	lifecycle *service.TaskLifecycleService
	logger    *zap.Logger
}

func NewLogHandler(logSync *service.LogSynchronizer, lifecycle *service.TaskLifecycleService, logger *zap.Logger) *LogHandler {
	return &LogHandler{logSync: logSync, lifecycle: lifecycle, logger: logger}
}

// ListLogs returns the caller's logs with statuses recomputed on read. An
// admin may query another user's logs with ?user=.
func (h *LogHandler) ListLogs(c *gin.Context) {
	user := c.GetString("username")
	if requested := c.Query("user"); requested != "" && requested != user {
		if !rbac.HasPermission(c.GetString("role"), rbac.PermissionVerifyLog) {
			c.JSON(http.StatusForbidden, gin.H{"error": "cannot read another user's logs"})
			return
		}
		user = requested
	}

	logs, err := h.logSync.GetUserLogs(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("ListLogs: failed to fetch logs",
			zap.String("user", user),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// ListProjectLogs returns every log of one project.
func (h *LogHandler) ListProjectLogs(c *gin.Context) {
	name := c.Param("name")

	logs, err := h.logSync.GetProjectLogs(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("ListProjectLogs: failed to fetch logs",
			zap.String("project", name),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// SyncLogs rebuilds the log projection for every project.
func (h *LogHandler) SyncLogs(c *gin.Context) {
	h.logger.Info("SyncLogs request received", zap.String("client_ip", c.ClientIP()))

	created, err := h.logSync.RebuildAll(c.Request.Context())
	if err != nil {
		h.logger.Error("SyncLogs: rebuild failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rebuild failed"})
		return
	}

	h.logger.Info("SyncLogs: success", zap.Int("created", created))
	c.JSON(http.StatusOK, gin.H{"created": created})
}

func (h *LogHandler) logID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log id"})
		return 0, false
	}
	return id, true
}

func (h *LogHandler) CompleteLog(c *gin.Context) {
	id, ok := h.logID(c)
	if !ok {
		return
	}
	user := c.GetString("username")

	h.logger.Info("CompleteLog request received",
		zap.Int("log_id", id),
		zap.String("user", user),
	)

	l, err := h.lifecycle.MarkComplete(c.Request.Context(), id, user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": l})
}

func (h *LogHandler) VerifyLog(c *gin.Context) {
	id, ok := h.logID(c)
	if !ok {
		return
	}

	h.logger.Info("VerifyLog request received",
		zap.Int("log_id", id),
		zap.String("approver", c.GetString("username")),
	)

	l, err := h.lifecycle.Verify(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": l})
}

func (h *LogHandler) RejectCompletion(c *gin.Context) {
	id, ok := h.logID(c)
	if !ok {
		return
	}

	l, err := h.lifecycle.RejectCompletion(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": l})
}

type extensionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *LogHandler) RequestExtension(c *gin.Context) {
	id, ok := h.logID(c)
	if !ok {
		return
	}

	var req extensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason required"})
		return
	}

	l, err := h.lifecycle.RequestExtension(c.Request.Context(), id, c.GetString("username"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": l})
}

type approveExtensionRequest struct {
	Deadline string `json:"deadline" binding:"required"`
}

func (h *LogHandler) ApproveExtension(c *gin.Context) {
	id, ok := h.logID(c)
	if !ok {
		return
	}

	var req approveExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deadline required"})
		return
	}

	h.logger.Info("ApproveExtension request received",
		zap.Int("log_id", id),
		zap.String("deadline", req.Deadline),
		zap.String("approver", c.GetString("username")),
	)

	l, err := h.lifecycle.ApproveExtension(c.Request.Context(), id, req.Deadline)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": l})
}

type rejectExtensionRequest struct {
	Notes string `json:"notes"`
}

func (h *LogHandler) RejectExtension(c *gin.Context) {
	id, ok := h.logID(c)
	if !ok {
		return
	}

	var req rejectExtensionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	l, err := h.lifecycle.RejectExtension(c.Request.Context(), id, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": l})
}
