package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stevelan1995/workflow-engine/pkg/cli/client"
	"github.com/stevelan1995/workflow-engine/pkg/cli/output"
)

var (
	runStatus     string
	runWorkflowID string
	runLimit      int
)

// runCmd run子命令
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "运行记录管理命令",
	Long:  `管理Workflow运行记录，包括列出、查看状态和取消。`,
}

// runListCmd 列出运行记录
var runListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出运行记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		result, err := c.ListRuns(runWorkflowID, runStatus, runLimit, 0)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无运行记录")
			return nil
		}

		table := output.NewTable([]string{"RUN_ID", "WORKFLOW", "STATUS", "STARTED", "DURATION"})
		for _, run := range result.Items {
			started := "-"
			if run.StartedAt != nil {
				started = run.StartedAt.Format("2006-01-02 15:04:05")
			}
			duration := "-"
			if run.Duration != "" {
				duration = run.Duration
			}
			table.AddRow([]string{
				run.ID,
				run.WorkflowName,
				formatStatus(run.Status),
				started,
				duration,
			})
		}
		table.Render()
		return nil
	},
}

// runStatusCmd 查看运行状态
var runStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "查看运行执行状态",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)

		detail, err := c.GetRun(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(detail)
		}

		fmt.Printf("Run:      %s\n", detail.ID)
		fmt.Printf("Workflow: %s (%s)\n", detail.WorkflowName, detail.WorkflowID)
		fmt.Printf("Status:   %s\n", formatStatus(detail.Status))
		fmt.Printf("Progress: %d/%d (%d%%)\n",
			detail.Progress.Completed,
			detail.Progress.Total,
			calculatePercent(detail.Progress.Completed, detail.Progress.Total))
		if detail.StartedAt != nil {
			fmt.Printf("Started:  %s\n", detail.StartedAt.Format("2006-01-02 15:04:05"))
		}
		if detail.FinishedAt != nil {
			fmt.Printf("Finished: %s\n", detail.FinishedAt.Format("2006-01-02 15:04:05"))
		}
		if detail.ErrorMessage != "" {
			fmt.Printf("Error:    %s\n", detail.ErrorMessage)
		}

		fmt.Println("\nTasks:")
		for _, t := range detail.Tasks {
			statusIcon := getStatusIcon(t.Status)
			duration := ""
			if t.Duration != "" {
				duration = fmt.Sprintf(" %s", t.Duration)
			}
			fmt.Printf("  %s %s  %s%s\n", statusIcon, t.InstanceID, t.Status, duration)
		}
		return nil
	},
}

// runCancelCmd 取消运行
var runCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "取消运行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		if err := c.CancelRun(args[0]); err != nil {
			output.Error("取消失败: %v", err)
			return err
		}
		output.Success("已请求取消运行: %s", args[0])
		return nil
	},
}

func init() {
	runListCmd.Flags().StringVar(&runStatus, "status", "", "按状态过滤 (SUCCEEDED/FAILED/RUNNING/CANCELLED)")
	runListCmd.Flags().StringVar(&runWorkflowID, "workflow", "", "按Workflow ID过滤")
	runListCmd.Flags().IntVar(&runLimit, "limit", 20, "返回条数上限")

	runCmd.AddCommand(runListCmd)
	runCmd.AddCommand(runStatusCmd)
	runCmd.AddCommand(runCancelCmd)
}
