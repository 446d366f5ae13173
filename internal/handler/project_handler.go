package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stageflow/internal/model"
	"stageflow/internal/service"
)

type ProjectHandler struct {
	projects *service.ProjectService
	logger   *zap.Logger
}

func NewProjectHandler(projects *service.ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

type createProjectRequest struct {
	Name             string                           `json:"name" binding:"required"`
	Client           string                           `json:"client"`
	Description      string                           `json:"description"`
	StartDate        string                           `json:"start_date" binding:"required"`
	DueDate          string                           `json:"due_date" binding:"required"`
	Levels           []string                         `json:"levels" binding:"required"`
	StageAssignments map[string]model.StageAssignment `json:"stage_assignments"`
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("CreateProject: invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, start_date, due_date and levels required"})
		return
	}

	h.logger.Info("CreateProject request received",
		zap.String("name", req.Name),
		zap.String("client_ip", c.ClientIP()),
	)

	p := &model.Project{
		Name:             req.Name,
		Client:           req.Client,
		Description:      req.Description,
		StartDate:        req.StartDate,
		DueDate:          req.DueDate,
		Levels:           req.Levels,
		StageAssignments: req.StageAssignments,
	}

	id, err := h.projects.Create(c.Request.Context(), p)
	if err != nil {
		h.logger.Error("CreateProject: failed",
			zap.String("name", req.Name),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	h.logger.Info("CreateProject: success",
		zap.Int("id", id),
		zap.String("name", req.Name),
	)
	c.JSON(http.StatusCreated, gin.H{"id": id, "project": p})
}

func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.projects.List(c.Request.Context())
	if err != nil {
		h.logger.Error("ListProjects: failed to fetch projects", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch projects"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	name := c.Param("name")

	p, err := h.projects.Get(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": p})
}

func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	name := c.Param("name")
	h.logger.Info("DeleteProject request received",
		zap.String("name", name),
		zap.String("client_ip", c.ClientIP()),
	)

	if err := h.projects.Delete(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("DeleteProject: success", zap.String("name", name))
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type dueDateRequest struct {
	DueDate    string `json:"due_date" binding:"required"`
	AutoAdjust bool   `json:"auto_adjust"`
}

func (h *ProjectHandler) UpdateDueDate(c *gin.Context) {
	name := c.Param("name")

	var req dueDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "due_date required"})
		return
	}

	h.logger.Info("UpdateDueDate request received",
		zap.String("name", name),
		zap.String("due_date", req.DueDate),
		zap.Bool("auto_adjust", req.AutoAdjust),
	)

	p, err := h.projects.ShiftDueDate(c.Request.Context(), name, req.DueDate, req.AutoAdjust)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": p})
}

type stagesRequest struct {
	StageAssignments map[string]model.StageAssignment `json:"stage_assignments" binding:"required"`
}

func (h *ProjectHandler) UpdateStages(c *gin.Context) {
	name := c.Param("name")

	var req stagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stage_assignments required"})
		return
	}

	h.logger.Info("UpdateStages request received",
		zap.String("name", name),
		zap.Int("stage_count", len(req.StageAssignments)),
	)

	p, err := h.projects.UpdateAssignments(c.Request.Context(), name, req.StageAssignments)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": p})
}

type toggleRequest struct {
	Completed *bool `json:"completed" binding:"required"`
}

func (h *ProjectHandler) ToggleStage(c *gin.Context) {
	name := c.Param("name")
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stage index"})
		return
	}

	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "completed required"})
		return
	}

	h.logger.Info("ToggleStage request received",
		zap.String("name", name),
		zap.Int("stage", idx),
		zap.Bool("completed", *req.Completed),
	)

	p, effects, err := h.projects.ToggleStage(c.Request.Context(), name, idx, *req.Completed)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"level":   p.Level,
		"effects": effects,
	})
}

func (h *ProjectHandler) ToggleSubstage(c *gin.Context) {
	name := c.Param("name")
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stage index"})
		return
	}
	sub, err := strconv.Atoi(c.Param("sid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid substage index"})
		return
	}

	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "completed required"})
		return
	}

	h.logger.Info("ToggleSubstage request received",
		zap.String("name", name),
		zap.Int("stage", idx),
		zap.Int("substage", sub),
		zap.Bool("completed", *req.Completed),
	)

	p, effects, err := h.projects.ToggleSubstage(c.Request.Context(), name, idx, sub, *req.Completed)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"level":   p.Level,
		"effects": effects,
	})
}

func (h *ProjectHandler) GetSummary(c *gin.Context) {
	name := c.Param("name")

	summary, err := h.projects.GetSummary(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (h *ProjectHandler) GetOverdue(c *gin.Context) {
	name := c.Param("name")

	items, err := h.projects.Overdue(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overdue": items})
}

func (h *ProjectHandler) ValidateDates(c *gin.Context) {
	name := c.Param("name")

	result, err := h.projects.ValidateDates(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
