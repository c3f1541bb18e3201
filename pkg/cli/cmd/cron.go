package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stevelan1995/workflow-engine/pkg/cli/client"
	"github.com/stevelan1995/workflow-engine/pkg/cli/output"
)

// cronCmd cron子命令
var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "定时调度管理命令",
	Long:  `管理Workflow定时调度，使用5字段标准Cron表达式（分 时 日 月 周）。`,
}

// cronListCmd 列出定时任务
var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出定时任务",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		result, err := c.ListCronJobs()
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(result)
		}

		if len(result.Items) == 0 {
			output.Info("暂无定时任务")
			return nil
		}

		table := output.NewTable([]string{"JOB_ID", "WORKFLOW_ID", "EXPRESSION", "ENABLED", "NEXT_FIRE", "RUNS"})
		for _, job := range result.Items {
			enabled := "yes"
			if !job.Enabled {
				enabled = "no"
			}
			nextFire := "-"
			if job.NextFire != nil {
				nextFire = job.NextFire.Format("2006-01-02 15:04:05")
			}
			table.AddRow([]string{
				job.ID,
				job.WorkflowID,
				job.Expression,
				enabled,
				nextFire,
				fmt.Sprintf("%d", job.RunCount),
			})
		}
		table.Render()
		return nil
	},
}

// cronAddCmd 注册定时任务
var cronAddCmd = &cobra.Command{
	Use:   "add <job-id> <workflow-id> <expression>",
	Short: "注册定时任务",
	Example: `  # 每小时整点触发
  workflow-engine cron add hourly-etl etl-pipeline "0 * * * *"`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		job, err := c.ScheduleCron(args[0], args[1], args[2])
		if err != nil {
			output.Error("注册失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(job)
		}

		nextFire := "-"
		if job.NextFire != nil {
			nextFire = job.NextFire.Format("2006-01-02 15:04:05")
		}
		output.Success("定时任务已注册: ID=%s, 下次触发=%s", job.ID, nextFire)
		return nil
	},
}

// cronEnableCmd 启用定时任务
var cronEnableCmd = &cobra.Command{
	Use:   "enable <job-id>",
	Short: "启用定时任务",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		if err := c.SetCronEnabled(args[0], true); err != nil {
			output.Error("启用失败: %v", err)
			return err
		}
		output.Success("定时任务已启用: %s", args[0])
		return nil
	},
}

// cronDisableCmd 停用定时任务
var cronDisableCmd = &cobra.Command{
	Use:   "disable <job-id>",
	Short: "停用定时任务",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		if err := c.SetCronEnabled(args[0], false); err != nil {
			output.Error("停用失败: %v", err)
			return err
		}
		output.Success("定时任务已停用: %s", args[0])
		return nil
	},
}

// cronRemoveCmd 删除定时任务
var cronRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "删除定时任务",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		if err := c.UnscheduleCron(args[0]); err != nil {
			output.Error("删除失败: %v", err)
			return err
		}
		output.Success("定时任务已删除: %s", args[0])
		return nil
	},
}

func init() {
	cronCmd.AddCommand(cronListCmd)
	cronCmd.AddCommand(cronAddCmd)
	cronCmd.AddCommand(cronEnableCmd)
	cronCmd.AddCommand(cronDisableCmd)
	cronCmd.AddCommand(cronRemoveCmd)
}
