package branch

import "fmt"

// Type 分支类型（对外导出）
type Type string

const (
	TypeIf     Type = "if"     // 二选一分支
	TypeSwitch Type = "switch" // 多路分支
	TypeLoop   Type = "loop"   // 循环分支
)

// IterationField 循环分支注入到求值上下文中的迭代计数字段名（对外导出）
// 从1开始计数
const IterationField = "iteration"

// Spec 分支定义（对外导出）
// DependsOn列出条件求值所依赖的前置任务，全部完成后才求值
type Spec struct {
	ID        string      `json:"id" yaml:"id"`
	Type      Type        `json:"type" yaml:"type"`
	DependsOn []string    `json:"depends_on" yaml:"depends_on"`
	If        *IfSpec     `json:"if,omitempty" yaml:"if,omitempty"`
	Switch    *SwitchSpec `json:"switch,omitempty" yaml:"switch,omitempty"`
	Loop      *LoopSpec   `json:"loop,omitempty" yaml:"loop,omitempty"`
}

// IfSpec 二选一分支（对外导出）
// 条件在分支点求值一次，未选中侧的任务全部标记Skipped
type IfSpec struct {
	Condition Condition `json:"condition" yaml:"condition"`
	Then      []string  `json:"then" yaml:"then"`
	Else      []string  `json:"else,omitempty" yaml:"else,omitempty"`
}

// SwitchCase 多路分支的一个case（对外导出）
type SwitchCase struct {
	Value interface{} `json:"value" yaml:"value"`
	Tasks []string    `json:"tasks" yaml:"tasks"`
}

// SwitchSpec 多路分支（对外导出）
// 按声明顺序逐个比较case值，首个匹配者胜出；都不匹配走Default
type SwitchSpec struct {
	Field   string       `json:"field" yaml:"field"`
	Cases   []SwitchCase `json:"cases" yaml:"cases"`
	Default []string     `json:"default,omitempty" yaml:"default,omitempty"`
}

// LoopSpec 循环分支（对外导出）
// 每轮迭代创建Body任务的全新实例；每轮结束后求值BreakWhen，
// 满足或达到MaxIterations时终止
type LoopSpec struct {
	Body          []string  `json:"body" yaml:"body"`
	BreakWhen     Condition `json:"break_when" yaml:"break_when"`
	MaxIterations int       `json:"max_iterations" yaml:"max_iterations"`
}

// Validate 校验分支定义（对外导出）
func (s *Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("分支ID不能为空")
	}
	switch s.Type {
	case TypeIf:
		if s.If == nil {
			return fmt.Errorf("分支 %s 类型为if但未提供if定义", s.ID)
		}
		if err := s.If.Condition.Validate(); err != nil {
			return fmt.Errorf("分支 %s 条件无效: %w", s.ID, err)
		}
		if len(s.If.Then) == 0 {
			return fmt.Errorf("分支 %s 的then任务列表不能为空", s.ID)
		}
	case TypeSwitch:
		if s.Switch == nil {
			return fmt.Errorf("分支 %s 类型为switch但未提供switch定义", s.ID)
		}
		if s.Switch.Field == "" {
			return fmt.Errorf("分支 %s 的switch字段不能为空", s.ID)
		}
		if len(s.Switch.Cases) == 0 {
			return fmt.Errorf("分支 %s 至少需要一个case", s.ID)
		}
	case TypeLoop:
		if s.Loop == nil {
			return fmt.Errorf("分支 %s 类型为loop但未提供loop定义", s.ID)
		}
		if len(s.Loop.Body) == 0 {
			return fmt.Errorf("分支 %s 的循环体不能为空", s.ID)
		}
		if s.Loop.MaxIterations <= 0 {
			return fmt.Errorf("分支 %s 的max_iterations必须大于0", s.ID)
		}
		if err := s.Loop.BreakWhen.Validate(); err != nil {
			return fmt.Errorf("分支 %s 退出条件无效: %w", s.ID, err)
		}
	default:
		return fmt.Errorf("分支 %s 类型无效: %s", s.ID, s.Type)
	}
	return nil
}

// TaskRefs 返回分支引用到的全部任务ID（对外导出）
// 校验时用于检查引用的任务是否存在
func (s *Spec) TaskRefs() []string {
	var refs []string
	refs = append(refs, s.DependsOn...)
	switch s.Type {
	case TypeIf:
		if s.If != nil {
			refs = append(refs, s.If.Then...)
			refs = append(refs, s.If.Else...)
		}
	case TypeSwitch:
		if s.Switch != nil {
			for _, c := range s.Switch.Cases {
				refs = append(refs, c.Tasks...)
			}
			refs = append(refs, s.Switch.Default...)
		}
	case TypeLoop:
		if s.Loop != nil {
			refs = append(refs, s.Loop.Body...)
		}
	}
	return refs
}

// MemberTasks 返回受分支选择控制的任务ID（不含DependsOn，对外导出）
func (s *Spec) MemberTasks() []string {
	switch s.Type {
	case TypeIf:
		if s.If != nil {
			members := append([]string{}, s.If.Then...)
			return append(members, s.If.Else...)
		}
	case TypeSwitch:
		if s.Switch != nil {
			var members []string
			for _, c := range s.Switch.Cases {
				members = append(members, c.Tasks...)
			}
			return append(members, s.Switch.Default...)
		}
	case TypeLoop:
		if s.Loop != nil {
			return append([]string{}, s.Loop.Body...)
		}
	}
	return nil
}

// SelectIf 求值if分支，返回选中与淘汰的任务列表（对外导出）
func (s *Spec) SelectIf(ctx map[string]interface{}) (selected, skipped []string) {
	if s.If.Condition.Evaluate(ctx) {
		return s.If.Then, s.If.Else
	}
	return s.If.Else, s.If.Then
}

// SelectSwitch 求值switch分支，按声明顺序首个匹配的case胜出（对外导出）
func (s *Spec) SelectSwitch(ctx map[string]interface{}) (selected, skipped []string) {
	actual, found := Lookup(ctx, s.Switch.Field)
	matched := -1
	if found {
		for i, c := range s.Switch.Cases {
			if compare(actual, OpEq, c.Value) {
				matched = i
				break
			}
		}
	}
	for i, c := range s.Switch.Cases {
		if i == matched {
			selected = append(selected, c.Tasks...)
		} else {
			skipped = append(skipped, c.Tasks...)
		}
	}
	if matched == -1 {
		selected = append(selected, s.Switch.Default...)
	} else {
		skipped = append(skipped, s.Switch.Default...)
	}
	return selected, skipped
}

// ShouldBreak 求值循环退出条件（对外导出）
// iteration从1开始，作为合成字段注入求值上下文
func (s *Spec) ShouldBreak(ctx map[string]interface{}, iteration int) bool {
	evalCtx := make(map[string]interface{}, len(ctx)+1)
	for k, v := range ctx {
		evalCtx[k] = v
	}
	evalCtx[IterationField] = iteration
	if s.Loop.BreakWhen.Evaluate(evalCtx) {
		return true
	}
	return iteration >= s.Loop.MaxIterations
}
