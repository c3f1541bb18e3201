package workflow

import (
	"github.com/stevelan1995/workflow-engine/pkg/core/dag"
	"github.com/stevelan1995/workflow-engine/pkg/core/resource"
)

// Validate 校验工作流定义（对外导出）
// 检查项：任务非空、依赖存在、无环、分支引用有效、资源需求不超过池容量。
// limits为零值时跳过容量检查
func (w *Workflow) Validate(limits resource.Limits) error {
	if len(w.Tasks) == 0 {
		return NewValidationError(w.ID, "工作流至少需要一个任务")
	}

	hasLimits := limits != (resource.Limits{})
	for _, id := range w.TaskOrder {
		spec := w.Tasks[id]
		if spec.HandlerName == "" {
			return NewValidationError(w.ID, "任务 %s 未绑定处理函数", id)
		}
		for _, dep := range spec.DependsOn {
			if _, ok := w.Tasks[dep]; !ok {
				return NewValidationError(w.ID, "任务 %s 依赖不存在的任务 %s", id, dep)
			}
		}
		if hasLimits && !spec.Requirements.Fits(limits) {
			return NewValidationError(w.ID, "任务 %s 的资源需求 %+v 超过资源池容量 %+v", id, spec.Requirements, limits)
		}
	}

	if _, err := w.BuildGraph(); err != nil {
		return NewValidationError(w.ID, "%v", err)
	}

	for _, b := range w.Branches {
		if err := b.Validate(); err != nil {
			return NewValidationError(w.ID, "%v", err)
		}
		for _, ref := range b.TaskRefs() {
			if _, ok := w.Tasks[ref]; !ok {
				return NewValidationError(w.ID, "分支 %s 引用不存在的任务 %s", b.ID, ref)
			}
		}
	}

	// 同一任务不允许同时属于两个分支的成员集
	owner := make(map[string]string)
	for _, b := range w.Branches {
		for _, member := range b.MemberTasks() {
			if prev, ok := owner[member]; ok && prev != b.ID {
				return NewValidationError(w.ID, "任务 %s 同时属于分支 %s 和 %s", member, prev, b.ID)
			}
			owner[member] = b.ID
		}
	}

	return nil
}

// BuildGraph 构建任务依赖图（对外导出）
// 环路和自引用在这里被拒绝
func (w *Workflow) BuildGraph() (*dag.Graph, error) {
	names := make(map[string]string, len(w.Tasks))
	deps := make(map[string][]string, len(w.Tasks))
	for id, spec := range w.Tasks {
		names[id] = spec.Name
		deps[id] = spec.DependsOn
	}
	return dag.Build(w.TaskOrder, names, deps)
}
