package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stevelan1995/workflow-engine/internal/storage"
	"github.com/stevelan1995/workflow-engine/pkg/api"
	"github.com/stevelan1995/workflow-engine/pkg/cli/output"
	"github.com/stevelan1995/workflow-engine/pkg/cluster"
	"github.com/stevelan1995/workflow-engine/pkg/config"
	"github.com/stevelan1995/workflow-engine/pkg/core/engine"
	"github.com/stevelan1995/workflow-engine/pkg/core/events"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
	"github.com/stevelan1995/workflow-engine/pkg/handlers"
)

var (
	serveConfigPath string
	servePort       int
	serveCluster    bool
)

// serveCmd 启动引擎服务
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动引擎服务",
	Long: `启动工作流引擎服务，对外提供HTTP API。

单机模式下任务在本进程内执行；加 --cluster 后本进程
作为协调器运行，任务派发给通过WebSocket接入的Worker节点。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveConfigPath)
		if err != nil {
			output.Error("加载配置失败: %v", err)
			return err
		}
		if servePort > 0 {
			cfg.HTTPPort = servePort
		}
		if serveCluster {
			cfg.Mode = "coordinator"
		}

		// 函数注册中心，预装内置处理函数
		registry := task.NewFunctionRegistry()
		handlers.RegisterBuiltins(registry)

		var opts []engine.Option

		// 持久化
		if cfg.Engine.EnablePersistence {
			repo, err := storage.NewRunRepository(cfg)
			if err != nil {
				output.Error("初始化存储失败: %v", err)
				return err
			}
			defer repo.Close()
			opts = append(opts, engine.WithRepository(repo))
		}

		// 事件总线
		var bus *events.Bus
		if cfg.Engine.EnableEvents {
			bus = events.NewBus()
			defer bus.Close()
			opts = append(opts, engine.WithEventBus(bus))
		}

		// 集群模式：引擎换用协调器派发
		var coordinator *cluster.Coordinator
		if cfg.Mode == "coordinator" {
			coordinator = cluster.NewCoordinator(cluster.CoordinatorConfig{
				HeartbeatInterval: time.Duration(cfg.Cluster.HeartbeatInterval) * time.Millisecond,
				MissThreshold:     cfg.Cluster.MissThreshold,
				DispatchWait:      time.Duration(cfg.Cluster.DispatchWaitSecs) * time.Second,
			})
			coordinator.Start()
			defer coordinator.Stop()
			opts = append(opts, engine.WithDispatcher(coordinator))
		}

		eng, err := engine.NewEngine(cfg, registry, opts...)
		if err != nil {
			output.Error("创建引擎失败: %v", err)
			return err
		}
		eng.Start()

		router := api.SetupRouter(eng, coordinator, Version)
		server := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("❌ [服务] HTTP服务器错误: %v", err)
			}
		}()

		mode := "单机"
		if coordinator != nil {
			mode = "集群协调器"
		}
		output.Success("引擎服务已启动: 端口=%d, 模式=%s", cfg.HTTPPort, mode)

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("🛑 正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️ 关闭HTTP服务器失败: %v", err)
		}

		eng.Stop()
		output.Success("服务已停止")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "./configs/engine.yaml", "配置文件路径")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP监听端口（覆盖配置文件）")
	serveCmd.Flags().BoolVar(&serveCluster, "cluster", false, "以集群协调器模式运行")
}
