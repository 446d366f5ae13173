package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stageflow/internal/service"
)

type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required,min=8"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Register: invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password (min 8 chars) required"})
		return
	}

	u, err := h.auth.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.logger.Warn("Register: failed",
			zap.String("username", req.Username),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	h.logger.Info("Register: success", zap.String("username", u.Username))
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	token, u, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Warn("Login: failed",
			zap.String("username", req.Username),
			zap.String("client_ip", c.ClientIP()),
		)
		respondError(c, err)
		return
	}

	h.logger.Info("Login: success", zap.String("username", u.Username))
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  u,
	})
}
