package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stevelan1995/workflow-engine/pkg/cli/client"
	"github.com/stevelan1995/workflow-engine/pkg/cli/output"
)

// clusterCmd cluster子命令
var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "集群状态查询命令",
}

// clusterWorkersCmd 列出Worker
var clusterWorkersCmd = &cobra.Command{
	Use:   "workers",
	Short: "列出集群Worker节点",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		result, err := c.ListWorkers()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无Worker节点")
			return nil
		}

		table := output.NewTable([]string{"WORKER_ID", "STATE", "LOAD", "LAST_HEARTBEAT"})
		for _, w := range result.Items {
			table.AddRow([]string{
				w.ID,
				w.State,
				fmt.Sprintf("%d", w.CurrentLoad),
				w.LastHeartbeat.Format("15:04:05.000"),
			})
		}
		table.Render()
		return nil
	},
}

// clusterStatsCmd 查询集群统计
var clusterStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "查询集群统计",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		stats, err := c.GetClusterStats()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(stats)
		}

		fmt.Printf("Workers:      %d (online %d)\n", stats.Workers, stats.Online)
		fmt.Printf("Inflight:     %d\n", stats.Inflight)
		fmt.Printf("Completed:    %d\n", stats.Completed)
		fmt.Printf("Failed:       %d\n", stats.Failed)
		fmt.Printf("Redispatched: %d\n", stats.Redispatched)
		return nil
	},
}

// clusterResourcesCmd 查询资源池状态
var clusterResourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "查询本地资源池状态",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		res, err := c.GetResources()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(res)
		}

		fmt.Printf("CPU:    %.1f / %.1f cores\n", res.UsedCPUCores, res.TotalCPUCores)
		fmt.Printf("Memory: %d / %d MB\n", res.UsedMemoryMB, res.TotalMemoryMB)
		fmt.Printf("GPU:    %d / %d devices\n", res.UsedGPUDevices, res.TotalGPUDevices)
		fmt.Printf("Slots:  %d / %d\n", res.UsedConcurrentSlots, res.TotalConcurrentSlots)
		fmt.Printf("Queue:  %d waiting\n", res.QueueLength)
		return nil
	},
}

func init() {
	clusterCmd.AddCommand(clusterWorkersCmd)
	clusterCmd.AddCommand(clusterStatsCmd)
	clusterCmd.AddCommand(clusterResourcesCmd)
}
