package cmd

import (
	"github.com/fatih/color"
)

// formatStatus 按状态着色
func formatStatus(status string) string {
	switch status {
	case "SUCCEEDED":
		return color.GreenString(status)
	case "FAILED":
		return color.RedString(status)
	case "RUNNING":
		return color.CyanString(status)
	case "CANCELLED":
		return color.YellowString(status)
	case "SKIPPED":
		return color.HiBlackString(status)
	default:
		return status
	}
}

// getStatusIcon 状态图标
func getStatusIcon(status string) string {
	switch status {
	case "SUCCEEDED":
		return "✅"
	case "FAILED":
		return "❌"
	case "RUNNING":
		return "🔄"
	case "CANCELLED":
		return "🛑"
	case "SKIPPED":
		return "⏭️"
	default:
		return "⏸️"
	}
}

// calculatePercent 计算百分比
func calculatePercent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return completed * 100 / total
}
