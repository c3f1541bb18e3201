package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stevelan1995/workflow-engine/pkg/core/branch"
	"github.com/stevelan1995/workflow-engine/pkg/core/task"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
)

// taskEvent 执行协程发回调度循环的状态事件（内部结构）
type taskEvent struct {
	instID     string
	status     workflow.TaskStatus
	output     map[string]interface{}
	err        error
	attempts   int
	durationMs int64
}

// depRef 任务实例的依赖引用（内部结构）
// instID非空时指向具体实例（循环体内部依赖），否则按任务定义ID解析最新实例
type depRef struct {
	taskID string
	instID string
}

// instance 任务实例（内部结构）
type instance struct {
	id        string
	spec      *workflow.TaskSpec
	iteration int
	deps      []depRef
	launched  bool
}

// branchState 分支的运行时状态（内部结构）
type branchState struct {
	spec      *branch.Spec
	evaluated bool            // if/switch是否已求值
	selected  map[string]bool // 选中的成员任务
	started   bool            // loop是否已开始
	loopDone  bool            // loop是否已结束
	iter      int             // 当前迭代序号（从1开始）
	current   []string        // 当前迭代的实例ID
}

// depOutcome 依赖判定结果（内部枚举）
type depOutcome int

const (
	depWait depOutcome = iota // 存在未终态依赖
	depOK                     // 可以继续
	depSkip                   // 应跳过
	depCancel                 // 应取消
)

// runState 单次运行的完整调度状态（内部结构）
// 仅在调度循环的goroutine中变更，不需要加锁
type runState struct {
	e         *Executor
	wf        *workflow.Workflow
	run       *workflow.Run
	instances map[string]*instance
	instOrder []string
	latest    map[string]string // 任务定义ID -> 最新实例ID
	loopOwner map[string]string // 任务定义ID -> 所属loop分支ID
	gate      map[string]string // 任务定义ID -> 所属if/switch分支ID
	branches  map[string]*branchState
	brOrder   []string
	events    chan *taskEvent
	running   int
	cancelled bool
}

// newRunState 初始化调度状态（内部方法）
// 循环体任务不做初始实例化，由迭代按轮创建
func newRunState(e *Executor, wf *workflow.Workflow, run *workflow.Run) *runState {
	s := &runState{
		e:         e,
		wf:        wf,
		run:       run,
		instances: make(map[string]*instance),
		latest:    make(map[string]string),
		loopOwner: wf.LoopBodyTasks(),
		gate:      make(map[string]string),
		branches:  make(map[string]*branchState),
		events:    make(chan *taskEvent, len(wf.Tasks)*2+16),
	}
	for _, b := range wf.Branches {
		s.branches[b.ID] = &branchState{spec: b}
		s.brOrder = append(s.brOrder, b.ID)
		if b.Type == branch.TypeIf || b.Type == branch.TypeSwitch {
			for _, member := range b.MemberTasks() {
				s.gate[member] = b.ID
			}
		}
	}
	for _, taskID := range wf.TaskOrder {
		if _, isLoopBody := s.loopOwner[taskID]; isLoopBody {
			continue
		}
		spec := wf.Tasks[taskID]
		inst := &instance{id: taskID, spec: spec}
		for _, dep := range spec.DependsOn {
			inst.deps = append(inst.deps, depRef{taskID: dep})
		}
		s.addInstance(inst)
	}
	return s
}

// addInstance 登记实例并初始化运行记录（内部方法）
func (s *runState) addInstance(inst *instance) {
	s.instances[inst.id] = inst
	s.instOrder = append(s.instOrder, inst.id)
	s.latest[inst.spec.ID] = inst.id
	s.run.AddTaskExecution(&workflow.TaskExecution{
		InstanceID: inst.id,
		TaskID:     inst.spec.ID,
		Iteration:  inst.iteration,
		Status:     workflow.TaskPending,
	})
}

// statusOf 任务定义ID的有效状态（内部方法）
// 循环体任务在循环结束前视为Pending，从未实例化的循环体视为Skipped
func (s *runState) statusOf(taskID string) (workflow.TaskStatus, bool) {
	spec := s.wf.Tasks[taskID]
	if bID, isLoopBody := s.loopOwner[taskID]; isLoopBody {
		bs := s.branches[bID]
		if !bs.loopDone {
			return workflow.TaskPending, false
		}
		instID, ok := s.latest[taskID]
		if !ok {
			return workflow.TaskSkipped, false
		}
		exec, _ := s.run.TaskExecution(instID)
		return exec.Status, spec.ContinueOnError
	}
	instID, ok := s.latest[taskID]
	if !ok {
		return workflow.TaskPending, false
	}
	exec, _ := s.run.TaskExecution(instID)
	return exec.Status, spec.ContinueOnError
}

// resolveDep 解析单个依赖引用（内部方法）
func (s *runState) resolveDep(ref depRef) (workflow.TaskStatus, bool) {
	if ref.instID != "" {
		exec, _ := s.run.TaskExecution(ref.instID)
		return exec.Status, s.instances[ref.instID].spec.ContinueOnError
	}
	return s.statusOf(ref.taskID)
}

// outcomeOf 汇总一组依赖的判定结果（内部方法）
// 规则：任一依赖未终态则等待；任一Cancelled则取消；任一硬失败
// （Failed且非continue_on_error）则跳过；全部Skipped则跳过；否则继续
func (s *runState) outcomeOf(refs []depRef) depOutcome {
	if len(refs) == 0 {
		return depOK
	}
	allSkipped := true
	for _, ref := range refs {
		st, cont := s.resolveDep(ref)
		if !st.IsTerminal() {
			return depWait
		}
		switch st {
		case workflow.TaskCancelled:
			return depCancel
		case workflow.TaskFailed:
			if !cont {
				return depSkip
			}
			allSkipped = false
		case workflow.TaskSucceeded:
			allSkipped = false
		}
	}
	if allSkipped {
		return depSkip
	}
	return depOK
}

// taskRefs 把任务定义ID列表转成依赖引用（内部方法）
func taskRefs(ids []string) []depRef {
	refs := make([]depRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, depRef{taskID: id})
	}
	return refs
}

// schedule 就绪判定与任务启动（内部方法）
// 返回是否发生了状态变化。串行模式下同一时刻最多一个在途任务，
// 并按声明顺序挑选就绪任务
func (s *runState) schedule(runCtx context.Context) bool {
	changed := false
	for _, id := range s.instOrder {
		inst := s.instances[id]
		if inst.launched {
			continue
		}
		exec, _ := s.run.TaskExecution(id)
		if exec.Status != workflow.TaskPending {
			continue
		}

		// if/switch成员在分支求值前保持Pending
		if gateID, gated := s.gate[inst.spec.ID]; gated {
			bs := s.branches[gateID]
			if !bs.evaluated {
				continue
			}
			if !bs.selected[inst.spec.ID] {
				// 未选中成员由求值逻辑直接标记，这里兜底
				s.markTerminal(inst, workflow.TaskSkipped, nil)
				changed = true
				continue
			}
		}

		switch s.outcomeOf(inst.deps) {
		case depWait:
			continue
		case depSkip:
			s.markTerminal(inst, workflow.TaskSkipped, nil)
			changed = true
		case depCancel:
			s.markTerminal(inst, workflow.TaskCancelled, nil)
			changed = true
		case depOK:
			if !s.wf.Parallel && s.running > 0 {
				// 串行模式：等待在途任务结束
				return changed
			}
			inst.launched = true
			s.running++
			s.run.SetTaskStatus(id, workflow.TaskReady)
			s.e.launch(runCtx, s, inst)
			changed = true
			if !s.wf.Parallel {
				return changed
			}
		}
	}
	return changed
}

// evaluateBranches 推进所有分支的状态（内部方法）
func (s *runState) evaluateBranches() bool {
	changed := false
	for _, bID := range s.brOrder {
		bs := s.branches[bID]
		switch bs.spec.Type {
		case branch.TypeIf, branch.TypeSwitch:
			if bs.evaluated {
				continue
			}
			outcome := s.outcomeOf(taskRefs(bs.spec.DependsOn))
			if outcome == depWait {
				continue
			}
			changed = true
			bs.evaluated = true
			bs.selected = make(map[string]bool)
			if outcome != depOK {
				status := workflow.TaskSkipped
				if outcome == depCancel {
					status = workflow.TaskCancelled
				}
				s.markMembers(bs.spec.MemberTasks(), status)
				continue
			}
			var selected, skipped []string
			if bs.spec.Type == branch.TypeIf {
				selected, skipped = bs.spec.SelectIf(s.run.EvalContext())
			} else {
				selected, skipped = bs.spec.SelectSwitch(s.run.EvalContext())
			}
			for _, id := range selected {
				bs.selected[id] = true
			}
			s.markMembers(skipped, workflow.TaskSkipped)
			log.Printf("🔀 [分支求值] RunID=%s, Branch=%s, 选中=%v, 跳过=%v", s.run.ID, bID, selected, skipped)

		case branch.TypeLoop:
			if bs.loopDone {
				continue
			}
			if !bs.started {
				outcome := s.outcomeOf(taskRefs(bs.spec.DependsOn))
				if outcome == depWait {
					continue
				}
				changed = true
				bs.started = true
				if outcome != depOK {
					bs.loopDone = true
					continue
				}
				s.startIteration(bs, 1)
				continue
			}
			if s.advanceLoop(bs) {
				changed = true
			}
		}
	}
	return changed
}

// advanceLoop 当前迭代全部终态后推进循环（内部方法）
// 返回是否发生了状态变化
func (s *runState) advanceLoop(bs *branchState) bool {
	failed := false
	for _, instID := range bs.current {
		exec, _ := s.run.TaskExecution(instID)
		if !exec.Status.IsTerminal() {
			return false
		}
		if exec.Status == workflow.TaskCancelled {
			failed = true
		}
		if exec.Status == workflow.TaskFailed && !s.instances[instID].spec.ContinueOnError {
			failed = true
		}
	}
	if failed {
		bs.loopDone = true
		log.Printf("🛑 [循环中止] RunID=%s, Branch=%s, 迭代=%d", s.run.ID, bs.spec.ID, bs.iter)
		return true
	}
	if bs.spec.ShouldBreak(s.run.EvalContext(), bs.iter) {
		bs.loopDone = true
		log.Printf("🏁 [循环结束] RunID=%s, Branch=%s, 总迭代=%d", s.run.ID, bs.spec.ID, bs.iter)
		return true
	}
	s.startIteration(bs, bs.iter+1)
	return true
}

// startIteration 创建一轮迭代的全新任务实例（内部方法）
// 循环体内部依赖绑定到同轮实例，外部依赖仍按任务定义ID解析
func (s *runState) startIteration(bs *branchState, iter int) {
	body := make(map[string]bool, len(bs.spec.Loop.Body))
	for _, id := range bs.spec.Loop.Body {
		body[id] = true
	}
	bs.iter = iter
	bs.current = bs.current[:0]
	for _, taskID := range bs.spec.Loop.Body {
		spec := s.wf.Tasks[taskID]
		inst := &instance{
			id:        fmt.Sprintf("%s#%d", taskID, iter),
			spec:      spec,
			iteration: iter,
		}
		for _, dep := range spec.DependsOn {
			if body[dep] {
				inst.deps = append(inst.deps, depRef{taskID: dep, instID: fmt.Sprintf("%s#%d", dep, iter)})
			} else {
				inst.deps = append(inst.deps, depRef{taskID: dep})
			}
		}
		s.addInstance(inst)
		bs.current = append(bs.current, inst.id)
	}
	log.Printf("🔁 [循环迭代] RunID=%s, Branch=%s, 迭代=%d, 实例=%v", s.run.ID, bs.spec.ID, iter, bs.current)
}

// markMembers 将一组成员任务标记为给定终态（内部方法）
func (s *runState) markMembers(taskIDs []string, status workflow.TaskStatus) {
	for _, taskID := range taskIDs {
		inst, ok := s.instances[taskID]
		if !ok {
			continue
		}
		exec, _ := s.run.TaskExecution(inst.id)
		if exec.Status.IsTerminal() || inst.launched {
			continue
		}
		s.markTerminal(inst, status, nil)
	}
}

// markTerminal 不经执行直接置终态并发出事件（内部方法）
func (s *runState) markTerminal(inst *instance, status workflow.TaskStatus, err error) {
	inst.launched = true
	s.run.SetTaskStatus(inst.id, status)
	s.emit(inst, status, nil, err, 0, 0)
}

// apply 应用执行协程发回的状态事件（内部方法）
func (s *runState) apply(ev *taskEvent) {
	inst := s.instances[ev.instID]
	switch ev.status {
	case workflow.TaskRunning:
		s.run.SetTaskStatus(ev.instID, workflow.TaskRunning)
	case workflow.TaskSucceeded:
		s.run.SetTaskAttempts(ev.instID, ev.attempts)
		s.run.SetTaskResult(ev.instID, ev.output, "")
		s.run.SetTaskStatus(ev.instID, workflow.TaskSucceeded)
		s.running--
	case workflow.TaskFailed:
		s.run.SetTaskAttempts(ev.instID, ev.attempts)
		s.run.SetTaskResult(ev.instID, nil, ev.err.Error())
		s.run.SetTaskStatus(ev.instID, workflow.TaskFailed)
		s.running--
		log.Printf("❌ [任务失败] RunID=%s, Task=%s, 尝试=%d, 错误=%v", s.run.ID, ev.instID, ev.attempts, ev.err)
	case workflow.TaskCancelled:
		s.run.SetTaskAttempts(ev.instID, ev.attempts)
		s.run.SetTaskStatus(ev.instID, workflow.TaskCancelled)
		s.running--
	}
	s.emit(inst, ev.status, ev.output, ev.err, ev.attempts, ev.durationMs)
}

// emit 触发事件回调（内部方法）
func (s *runState) emit(inst *instance, status workflow.TaskStatus, output map[string]interface{}, err error, attempts int, durationMs int64) {
	if s.e.sink == nil {
		return
	}
	s.e.sink(&TaskStatusEvent{
		RunID:      s.run.ID,
		WorkflowID: s.wf.ID,
		InstanceID: inst.id,
		TaskID:     inst.spec.ID,
		Iteration:  inst.iteration,
		Status:     status,
		Attempts:   attempts,
		Output:     output,
		Err:        err,
		Timestamp:  time.Now(),
		DurationMs: durationMs,
	})
}

// cancelRemaining 取消所有未启动的实例（内部方法）
// 在途实例由各自协程响应取消信号后发回事件
func (s *runState) cancelRemaining(status workflow.TaskStatus) {
	for _, id := range s.instOrder {
		inst := s.instances[id]
		exec, _ := s.run.TaskExecution(id)
		if exec.Status.IsTerminal() || inst.launched {
			continue
		}
		s.markTerminal(inst, status, nil)
	}
}

// settled 判断运行是否可以收束（内部方法）
// 所有实例终态且所有分支已决议
func (s *runState) settled() bool {
	for _, id := range s.instOrder {
		exec, _ := s.run.TaskExecution(id)
		if !exec.Status.IsTerminal() {
			return false
		}
	}
	for _, bID := range s.brOrder {
		bs := s.branches[bID]
		switch bs.spec.Type {
		case branch.TypeLoop:
			if !bs.loopDone {
				return false
			}
		default:
			if !bs.evaluated {
				return false
			}
		}
	}
	return true
}

// newTaskContext 构造任务执行上下文（内部方法）
// 参数为工作流级参数与任务级参数的合并，任务级优先
func (s *runState) newTaskContext(ctx context.Context, inst *instance) *task.Context {
	params := make(map[string]interface{}, len(s.wf.Params)+len(inst.spec.Params))
	for k, v := range s.wf.Params {
		params[k] = v
	}
	for k, v := range inst.spec.Params {
		params[k] = v
	}
	snap := s.run.Snapshot()
	runCtxMap := snap.Context
	if inst.iteration > 0 {
		runCtxMap[branch.IterationField] = inst.iteration
	}
	return task.NewContext(ctx, inst.spec.ID, inst.spec.Name, s.wf.ID, s.run.ID, inst.iteration, params, runCtxMap)
}
