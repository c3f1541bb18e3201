package storage

import (
	"context"
	"errors"

	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

// ErrRunNotFound 运行记录不存在（对外导出）
var ErrRunNotFound = errors.New("运行记录不存在")

// RunRepository 运行记录仓储接口（对外导出）
// 持久化为可选能力：引擎在每次状态变更后调用SaveRun，
// 仓储失败只记日志，不影响运行本身。SaveRun必须幂等
type RunRepository interface {
	// SaveRun 幂等保存运行快照（插入或覆盖）
	SaveRun(ctx context.Context, snap *workflow.RunSnapshot) error

	// GetRun 按运行ID读取快照
	GetRun(ctx context.Context, runID string) (*workflow.RunSnapshot, error)

	// ListRuns 按工作流ID列出运行快照，workflowID为空时列出全部
	ListRuns(ctx context.Context, workflowID string, limit int) ([]*workflow.RunSnapshot, error)

	// DeleteRun 删除运行记录，幂等
	DeleteRun(ctx context.Context, runID string) error

	// Close 释放底层连接
	Close() error
}
