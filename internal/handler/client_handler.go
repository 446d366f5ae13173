package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stageflow/internal/model"
	"stageflow/internal/repository"
)

type ClientHandler struct {
	repo   *repository.ClientRepository
	logger *zap.Logger
}

func NewClientHandler(repo *repository.ClientRepository, logger *zap.Logger) *ClientHandler {
	return &ClientHandler{repo: repo, logger: logger}
}

type createClientRequest struct {
	Name    string `json:"name" binding:"required"`
	Contact string `json:"contact"`
	Email   string `json:"email"`
}

func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}

	client := &model.Client{Name: req.Name, Contact: req.Contact, Email: req.Email}
	id, err := h.repo.Insert(c.Request.Context(), client)
	if err != nil {
		h.logger.Error("CreateClient: failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create client"})
		return
	}
	client.ID = id

	c.JSON(http.StatusCreated, gin.H{"client": client})
}

func (h *ClientHandler) ListClients(c *gin.Context) {
	clients, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("ListClients: failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch clients"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

type createOpportunityRequest struct {
	Client string  `json:"client" binding:"required"`
	Title  string  `json:"title" binding:"required"`
	Value  float64 `json:"value"`
	Status string  `json:"status"`
}

func (h *ClientHandler) CreateOpportunity(c *gin.Context) {
	var req createOpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client and title required"})
		return
	}

	o := &model.Opportunity{
		Client: req.Client,
		Title:  req.Title,
		Value:  req.Value,
		Status: req.Status,
	}
	if o.Status == "" {
		o.Status = "open"
	}

	id, err := h.repo.InsertOpportunity(c.Request.Context(), o)
	if err != nil {
		h.logger.Error("CreateOpportunity: failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create opportunity"})
		return
	}
	o.ID = id

	c.JSON(http.StatusCreated, gin.H{"opportunity": o})
}

func (h *ClientHandler) ListOpportunities(c *gin.Context) {
	opportunities, err := h.repo.ListOpportunities(c.Request.Context())
	if err != nil {
		h.logger.Error("ListOpportunities: failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch opportunities"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"opportunities": opportunities})
}
