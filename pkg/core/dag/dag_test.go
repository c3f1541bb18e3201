package dag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevelan1995/workflow-engine/pkg/core/dag"
)

func buildDiamond(t *testing.T) *dag.Graph {
	t.Helper()
	// fetch -> {clean, enrich} -> aggregate
	g, err := dag.Build(
		[]string{"fetch", "clean", "enrich", "aggregate"},
		map[string]string{},
		map[string][]string{
			"clean":     {"fetch"},
			"enrich":    {"fetch"},
			"aggregate": {"clean", "enrich"},
		},
	)
	require.NoError(t, err)
	return g
}

func TestGraphBuild(t *testing.T) {
	t.Run("正常构建菱形依赖", func(t *testing.T) {
		g := buildDiamond(t)
		assert.Equal(t, 4, g.Size())
		assert.Equal(t, []string{"fetch"}, g.Roots())

		children, err := g.Children("fetch")
		require.NoError(t, err)
		assert.Equal(t, []string{"clean", "enrich"}, children)

		parents, err := g.Parents("aggregate")
		require.NoError(t, err)
		assert.Equal(t, []string{"clean", "enrich"}, parents)
	})

	t.Run("自依赖报错", func(t *testing.T) {
		_, err := dag.Build(
			[]string{"a"},
			map[string]string{},
			map[string][]string{"a": {"a"}},
		)
		assert.Error(t, err)
	})

	t.Run("环路报错", func(t *testing.T) {
		_, err := dag.Build(
			[]string{"a", "b", "c"},
			map[string]string{},
			map[string][]string{
				"a": {"c"},
				"b": {"a"},
				"c": {"b"},
			},
		)
		assert.Error(t, err)
	})
}

func TestTopologicalLevels(t *testing.T) {
	t.Run("分层结果正确", func(t *testing.T) {
		g := buildDiamond(t)
		levels, err := g.TopologicalLevels()
		require.NoError(t, err)
		assert.Equal(t, [][]string{
			{"fetch"},
			{"clean", "enrich"},
			{"aggregate"},
		}, levels)
	})

	t.Run("层内保持声明顺序", func(t *testing.T) {
		g, err := dag.Build(
			[]string{"z_first", "a_second", "m_third"},
			map[string]string{},
			map[string][]string{},
		)
		require.NoError(t, err)

		levels, err := g.TopologicalLevels()
		require.NoError(t, err)
		require.Len(t, levels, 1)
		// 无依赖时同层内不按字母序，按声明序
		assert.Equal(t, []string{"z_first", "a_second", "m_third"}, levels[0])
	})

	t.Run("展平顺序满足依赖先行", func(t *testing.T) {
		g := buildDiamond(t)
		flat, err := g.FlatOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"fetch", "clean", "enrich", "aggregate"}, flat)
	})
}
