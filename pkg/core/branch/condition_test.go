package branch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stevelan1995/workflow-engine/pkg/core/branch"
)

func TestConditionEvaluate(t *testing.T) {
	ctx := map[string]interface{}{
		"status":  "success",
		"score":   0.87,
		"count":   5,
		"tags":    []interface{}{"etl", "daily"},
		"message": "fetch completed",
		"train": map[string]interface{}{
			"accuracy": 0.95,
			"metrics": map[string]interface{}{
				"loss": 0.12,
			},
		},
	}

	cases := []struct {
		name string
		cond branch.Condition
		want bool
	}{
		{"eq字符串相等", branch.Condition{Field: "status", Op: branch.OpEq, Value: "success"}, true},
		{"eq字符串不等", branch.Condition{Field: "status", Op: branch.OpEq, Value: "failed"}, false},
		{"ne不等于", branch.Condition{Field: "status", Op: branch.OpNe, Value: "failed"}, true},
		{"gt大于", branch.Condition{Field: "score", Op: branch.OpGt, Value: 0.8}, true},
		{"gt不大于", branch.Condition{Field: "score", Op: branch.OpGt, Value: 0.9}, false},
		{"lt小于", branch.Condition{Field: "count", Op: branch.OpLt, Value: 10}, true},
		{"ge等于边界", branch.Condition{Field: "score", Op: branch.OpGe, Value: 0.87}, true},
		{"le小于等于", branch.Condition{Field: "count", Op: branch.OpLe, Value: 5}, true},
		{"contains字符串子串", branch.Condition{Field: "message", Op: branch.OpContains, Value: "completed"}, true},
		{"contains切片成员", branch.Condition{Field: "tags", Op: branch.OpContains, Value: "etl"}, true},
		{"contains不包含", branch.Condition{Field: "tags", Op: branch.OpContains, Value: "weekly"}, false},
		{"字段缺失视为不满足", branch.Condition{Field: "missing", Op: branch.OpEq, Value: 1}, false},
		{"int与float跨类型数值比较", branch.Condition{Field: "count", Op: branch.OpEq, Value: 5.0}, true},
		{"点号路径下钻嵌套map", branch.Condition{Field: "train.accuracy", Op: branch.OpGe, Value: 0.95}, true},
		{"点号路径两级下钻", branch.Condition{Field: "train.metrics.loss", Op: branch.OpLt, Value: 0.2}, true},
		{"点号路径中断返回false", branch.Condition{Field: "train.missing.loss", Op: branch.OpEq, Value: 1}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cond.Evaluate(ctx))
		})
	}
}

func TestConditionValidate(t *testing.T) {
	t.Run("合法条件", func(t *testing.T) {
		cond := branch.Condition{Field: "score", Op: branch.OpGt, Value: 0.8}
		assert.NoError(t, cond.Validate())
	})

	t.Run("field为空报错", func(t *testing.T) {
		cond := branch.Condition{Op: branch.OpEq, Value: 1}
		assert.Error(t, cond.Validate())
	})

	t.Run("非法运算符报错", func(t *testing.T) {
		cond := branch.Condition{Field: "score", Op: "like", Value: 1}
		assert.Error(t, cond.Validate())
	})
}

func TestLookup(t *testing.T) {
	t.Run("精确匹配优先于点号下钻", func(t *testing.T) {
		ctx := map[string]interface{}{
			"a.b": "flat",
			"a":   map[string]interface{}{"b": "nested"},
		}
		v, ok := branch.Lookup(ctx, "a.b")
		assert.True(t, ok)
		assert.Equal(t, "flat", v)
	})
}
