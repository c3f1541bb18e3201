package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stevelan1995/workflow-engine/pkg/cli/output"
	"github.com/stevelan1995/workflow-engine/pkg/cluster"
	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
	"github.com/stevelan1995/workflow-engine/pkg/handlers"
)

var (
	workerID             string
	workerCoordinatorURL string
	workerCPUCores       float64
	workerMemoryMB       int64
	workerGPUDevices     int
	workerSlots          int
	workerMaxConcurrent  int
	workerHeartbeatMs    int
)

// workerCmd 启动集群Worker节点
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "启动Worker节点并接入集群",
	Long: `启动一个Worker节点，通过WebSocket连接协调器，
注册自身容量后接收任务派发并在本地执行。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := task.NewFunctionRegistry()
		handlers.RegisterBuiltins(registry)

		conn, err := cluster.DialCoordinator(workerCoordinatorURL)
		if err != nil {
			output.Error("连接协调器失败: %v", err)
			return err
		}

		worker, err := cluster.NewWorker(cluster.WorkerConfig{
			ID:   workerID,
			Addr: workerCoordinatorURL,
			Capacity: resource.Limits{
				CPUCores:        workerCPUCores,
				MemoryMB:        workerMemoryMB,
				GPUDevices:      workerGPUDevices,
				ConcurrentSlots: workerSlots,
			},
			MaxConcurrent:     workerMaxConcurrent,
			HeartbeatInterval: time.Duration(workerHeartbeatMs) * time.Millisecond,
		}, registry, conn)
		if err != nil {
			output.Error("创建Worker失败: %v", err)
			return err
		}

		if err := worker.Start(); err != nil {
			output.Error("启动Worker失败: %v", err)
			return err
		}
		output.Success("Worker已接入集群: ID=%s, 协调器=%s", workerID, workerCoordinatorURL)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		worker.Stop()
		return nil
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerID, "id", "", "Worker ID（必填）")
	workerCmd.Flags().StringVar(&workerCoordinatorURL, "coordinator", "ws://localhost:8080/ws", "协调器WebSocket地址")
	workerCmd.Flags().Float64Var(&workerCPUCores, "cpu", 4, "CPU核数容量")
	workerCmd.Flags().Int64Var(&workerMemoryMB, "memory", 8192, "内存容量（MB）")
	workerCmd.Flags().IntVar(&workerGPUDevices, "gpu", 0, "GPU设备数")
	workerCmd.Flags().IntVar(&workerSlots, "slots", 16, "并发槽位数")
	workerCmd.Flags().IntVar(&workerMaxConcurrent, "max-concurrent", 10, "本地并发上限")
	workerCmd.Flags().IntVar(&workerHeartbeatMs, "heartbeat", 1000, "心跳间隔（毫秒）")
	workerCmd.MarkFlagRequired("id")
}
