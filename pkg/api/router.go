package api

import (
	"github.com/gin-gonic/gin"
	"github.com/stevelan1995/workflow-engine/pkg/api/handler"
	"github.com/stevelan1995/workflow-engine/pkg/api/middleware"
	"github.com/stevelan1995/workflow-engine/pkg/cluster"
	"github.com/stevelan1995/workflow-engine/pkg/core/engine"
)

// SetupRouter 设置路由
// coordinator为nil时以单机模式运行，不注册WebSocket接入端
func SetupRouter(eng *engine.Engine, coordinator *cluster.Coordinator, version string) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	// 创建handlers
	workflowHandler := handler.NewWorkflowHandler(eng)
	runHandler := handler.NewRunHandler(eng)
	clusterHandler := handler.NewClusterHandler(eng, coordinator)
	healthHandler := handler.NewHealthHandler(version)

	// 健康检查路由（不带前缀）
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Worker接入端
	if coordinator != nil {
		wsServer := cluster.NewWSServer(coordinator)
		router.GET("/ws", gin.WrapH(wsServer))
	}

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		// Workflow路由
		workflows := v1.Group("/workflows")
		{
			workflows.GET("", workflowHandler.List)
			workflows.GET("/:id", workflowHandler.Get)
			workflows.POST("/:id/submit", workflowHandler.Submit)
			workflows.GET("/:id/history", workflowHandler.History)
		}

		// 运行记录路由
		runs := v1.Group("/runs")
		{
			runs.GET("", runHandler.List)
			runs.GET("/:id", runHandler.Get)
			runs.GET("/:id/tasks", runHandler.GetTasks)
			runs.POST("/:id/cancel", runHandler.Cancel)
		}

		// 定时调度路由
		crons := v1.Group("/cron")
		{
			crons.GET("", workflowHandler.ListCron)
			crons.POST("", workflowHandler.ScheduleCron)
			crons.POST("/:id/enabled", workflowHandler.SetCronEnabled)
			crons.DELETE("/:id", workflowHandler.UnscheduleCron)
		}

		// 资源与集群路由
		v1.GET("/resources", clusterHandler.Resources)
		clusterGroup := v1.Group("/cluster")
		{
			clusterGroup.GET("/workers", clusterHandler.Workers)
			clusterGroup.GET("/stats", clusterHandler.Stats)
		}
	}

	return router
}
