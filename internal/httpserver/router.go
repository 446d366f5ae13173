package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stageflow/internal/handler"
	"stageflow/pkg/mq"
	"stageflow/pkg/rbac"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	authHandler *handler.AuthHandler,
	projectHandler *handler.ProjectHandler,
	logHandler *handler.LogHandler,
	clientHandler *handler.ClientHandler,
	jwtSecret string,
	logger *zap.Logger,
	db *pgxpool.Pool,
	publisher *mq.Publisher,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		if publisher != nil && !publisher.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/register", authHandler.Register)
	r.POST("/login", authHandler.Login)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/projects", projectHandler.ListProjects)
		auth.GET("/projects/:name", projectHandler.GetProject)
		auth.GET("/projects/:name/summary", projectHandler.GetSummary)
		auth.GET("/projects/:name/overdue", projectHandler.GetOverdue)
		auth.GET("/projects/:name/validate", projectHandler.ValidateDates)
		auth.GET("/projects/:name/logs", logHandler.ListProjectLogs)

		auth.POST("/projects/:name/stages/:idx/toggle",
			RequirePermission(rbac.PermissionToggleStage), projectHandler.ToggleStage)
		auth.POST("/projects/:name/stages/:idx/substages/:sid/toggle",
			RequirePermission(rbac.PermissionToggleStage), projectHandler.ToggleSubstage)

		auth.GET("/logs", logHandler.ListLogs)
		auth.POST("/logs/:id/complete",
			RequirePermission(rbac.PermissionCompleteLog), logHandler.CompleteLog)
		auth.POST("/logs/:id/extension",
			RequirePermission(rbac.PermissionRequestExtension), logHandler.RequestExtension)

		// Admin
		admin := auth.Group("/")
		{
			admin.POST("/projects",
				RequirePermission(rbac.PermissionManageProjects), projectHandler.CreateProject)
			admin.DELETE("/projects/:name",
				RequirePermission(rbac.PermissionManageProjects), projectHandler.DeleteProject)
			admin.PUT("/projects/:name/due-date",
				RequirePermission(rbac.PermissionManageProjects), projectHandler.UpdateDueDate)
			admin.PUT("/projects/:name/stages",
				RequirePermission(rbac.PermissionManageProjects), projectHandler.UpdateStages)

			admin.POST("/logs/sync",
				RequirePermission(rbac.PermissionManageProjects), logHandler.SyncLogs)
			admin.POST("/logs/:id/verify",
				RequirePermission(rbac.PermissionVerifyLog), logHandler.VerifyLog)
			admin.POST("/logs/:id/reject",
				RequirePermission(rbac.PermissionVerifyLog), logHandler.RejectCompletion)
			admin.POST("/logs/:id/extension/approve",
				RequirePermission(rbac.PermissionApproveExtension), logHandler.ApproveExtension)
			admin.POST("/logs/:id/extension/reject",
				RequirePermission(rbac.PermissionApproveExtension), logHandler.RejectExtension)

			admin.GET("/clients", clientHandler.ListClients)
			admin.POST("/clients",
				RequirePermission(rbac.PermissionManageClients), clientHandler.CreateClient)
			admin.GET("/opportunities", clientHandler.ListOpportunities)
			admin.POST("/opportunities",
				RequirePermission(rbac.PermissionManageClients), clientHandler.CreateOpportunity)
		}
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
