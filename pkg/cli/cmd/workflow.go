package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stevelan1995/workflow-engine/pkg/cli/client"
	"github.com/stevelan1995/workflow-engine/pkg/cli/output"
)

var (
	submitParams   string
	historyStatus  string
	historyLimit   int
)

// workflowCmd workflow子命令
var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Workflow管理命令",
	Long:  `管理已注册的Workflow，包括列出、查看详情、提交运行和查询历史。`,
}

// workflowListCmd 列出Workflow
var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出已注册的Workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		result, err := c.ListWorkflows()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无Workflow")
			return nil
		}

		table := output.NewTable([]string{"WORKFLOW_ID", "NAME", "TASKS", "BRANCHES", "MODE"})
		for _, wf := range result.Items {
			mode := "parallel"
			if !wf.Parallel {
				mode = "sequential"
			}
			table.AddRow([]string{
				wf.ID,
				wf.Name,
				fmt.Sprintf("%d", wf.TaskCount),
				fmt.Sprintf("%d", wf.BranchCount),
				mode,
			})
		}
		table.Render()
		return nil
	},
}

// workflowGetCmd 查看Workflow详情
var workflowGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "查看Workflow详情",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		detail, err := c.GetWorkflow(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(detail)
		}

		fmt.Printf("Workflow: %s (%s)\n", detail.Name, detail.ID)
		if detail.Description != "" {
			fmt.Printf("Description: %s\n", detail.Description)
		}
		mode := "parallel"
		if !detail.Parallel {
			mode = "sequential"
		}
		fmt.Printf("Mode: %s\n", mode)

		fmt.Println("\nTasks:")
		for _, t := range detail.Tasks {
			deps := "-"
			if len(t.Dependencies) > 0 {
				deps = strings.Join(t.Dependencies, ", ")
			}
			fmt.Printf("  %s (handler=%s, deps=%s)\n", t.ID, t.Handler, deps)
		}
		return nil
	},
}

// workflowSubmitCmd 提交运行
var workflowSubmitCmd = &cobra.Command{
	Use:   "submit <id>",
	Short: "提交一次运行",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params map[string]interface{}
		if submitParams != "" {
			if err := json.Unmarshal([]byte(submitParams), &params); err != nil {
				output.Error("参数必须是合法JSON: %v", err)
				return err
			}
		}

		c := client.New(serverURL)
		result, err := c.SubmitWorkflow(args[0], params)
		if err != nil {
			output.Error("提交失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		output.Success("运行已提交: RunID=%s", result.RunID)
		return nil
	},
}

// workflowHistoryCmd 查询运行历史
var workflowHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "查询Workflow运行历史",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		result, err := c.GetWorkflowHistory(args[0], historyStatus, historyLimit, 0)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无执行历史")
			return nil
		}

		table := output.NewTable([]string{"RUN_ID", "STATUS", "STARTED_AT", "DURATION", "ERROR"})
		for _, run := range result.Items {
			started := "-"
			if run.StartedAt != nil {
				started = run.StartedAt.Format("2006-01-02 15:04:05")
			}
			duration := "-"
			if run.Duration != "" {
				duration = run.Duration
			}
			errMsg := "-"
			if run.ErrorMessage != "" {
				if len(run.ErrorMessage) > 30 {
					errMsg = run.ErrorMessage[:30] + "..."
				} else {
					errMsg = run.ErrorMessage
				}
			}
			table.AddRow([]string{run.ID, formatStatus(run.Status), started, duration, errMsg})
		}
		table.Render()
		fmt.Printf("\n总计: %d 条记录\n", result.Total)
		return nil
	},
}

func init() {
	workflowSubmitCmd.Flags().StringVar(&submitParams, "params", "", "运行参数（JSON对象）")
	workflowHistoryCmd.Flags().StringVar(&historyStatus, "status", "", "按状态过滤 (SUCCEEDED/FAILED/RUNNING/CANCELLED)")
	workflowHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "返回条数上限")

	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowGetCmd)
	workflowCmd.AddCommand(workflowSubmitCmd)
	workflowCmd.AddCommand(workflowHistoryCmd)
}
