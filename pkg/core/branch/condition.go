package branch

import (
	"fmt"
	"strings"
)

// CompareOp 条件比较运算符（对外导出）
type CompareOp string

const (
	OpEq       CompareOp = "eq"       // 等于
	OpNe       CompareOp = "ne"       // 不等于
	OpGt       CompareOp = "gt"       // 大于
	OpLt       CompareOp = "lt"       // 小于
	OpGe       CompareOp = "ge"       // 大于等于
	OpLe       CompareOp = "le"       // 小于等于
	OpContains CompareOp = "contains" // 包含（字符串子串或切片成员）
)

// Condition 分支判定条件（对外导出）
// Field支持点号路径（如 "train.accuracy"），对运行上下文求值
type Condition struct {
	Field string      `json:"field" yaml:"field"`
	Op    CompareOp   `json:"op" yaml:"op"`
	Value interface{} `json:"value" yaml:"value"`
}

// Validate 校验条件定义（对外导出）
func (c Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("条件的field不能为空")
	}
	switch c.Op {
	case OpEq, OpNe, OpGt, OpLt, OpGe, OpLe, OpContains:
		return nil
	default:
		return fmt.Errorf("不支持的比较运算符: %s", c.Op)
	}
}

// Evaluate 对运行上下文求值（对外导出）
// 字段缺失视为不满足（返回false），不产生错误
func (c Condition) Evaluate(ctx map[string]interface{}) bool {
	actual, ok := Lookup(ctx, c.Field)
	if !ok {
		return false
	}
	return compare(actual, c.Op, c.Value)
}

// Lookup 在上下文中查找字段值（对外导出）
// 优先精确匹配，其次按点号路径逐级下钻嵌套map
func Lookup(ctx map[string]interface{}, field string) (interface{}, bool) {
	if v, ok := ctx[field]; ok {
		return v, true
	}
	parts := strings.Split(field, ".")
	if len(parts) < 2 {
		return nil, false
	}
	var cur interface{} = ctx
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// compare 执行单次比较（内部方法）
func compare(actual interface{}, op CompareOp, expected interface{}) bool {
	switch op {
	case OpEq:
		if eq, ok := numericEqual(actual, expected); ok {
			return eq
		}
		return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
	case OpNe:
		if eq, ok := numericEqual(actual, expected); ok {
			return !eq
		}
		return fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", expected)
	case OpGt, OpLt, OpGe, OpLe:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		if !aok || !bok {
			return false
		}
		switch op {
		case OpGt:
			return a > b
		case OpLt:
			return a < b
		case OpGe:
			return a >= b
		default:
			return a <= b
		}
	case OpContains:
		return contains(actual, expected)
	default:
		return false
	}
}

// numericEqual 双方都能转为数值时按数值比较
func numericEqual(a, b interface{}) (bool, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf, true
	}
	return false, false
}

// toFloat 数值类型统一转float64比较（JSON反序列化后数值均为float64）
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// contains 字符串子串或切片成员判断
func contains(actual, expected interface{}) bool {
	switch a := actual.(type) {
	case string:
		return strings.Contains(a, fmt.Sprintf("%v", expected))
	case []interface{}:
		for _, item := range a {
			if compare(item, OpEq, expected) {
				return true
			}
		}
		return false
	case []string:
		want := fmt.Sprintf("%v", expected)
		for _, item := range a {
			if item == want {
				return true
			}
		}
		return false
	default:
		return false
	}
}
