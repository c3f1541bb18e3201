package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// 全局变量
	serverURL  string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "workflow-engine",
	Short: "Workflow Engine CLI - 工作流编排引擎命令行工具",
	Long: `Workflow Engine CLI 是工作流编排引擎的命令行工具。

支持的功能：
  - 启动引擎服务（单机或集群协调器模式）
  - 启动集群Worker节点
  - 管理Workflow（列出、查看、提交运行）
  - 管理运行记录（列出、查看状态、取消）
  - 管理定时调度（注册、启停、删除）
  - 查看集群与资源池状态

使用示例：
  # 启动引擎服务
  workflow-engine serve --config ./configs/engine.yaml

  # 启动Worker节点接入集群
  workflow-engine worker --id worker-1 --coordinator ws://localhost:8080/ws

  # 提交一次运行
  workflow-engine workflow submit <workflow-id>

  # 查看运行状态
  workflow-engine run status <run-id>`,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "引擎服务器地址")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	// 添加子命令
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cronCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(versionCmd)
}
