package dag

import (
	"fmt"
	"sort"

	godag "github.com/begmaroman/go-dag"
)

// Node DAG节点，实现go-dag的Identifiable接口（对外导出）
type Node struct {
	NodeID string
	Name   string
}

// ID 实现Identifiable接口
func (n *Node) ID() string {
	return n.NodeID
}

// Graph 任务依赖图（对外导出）
// 封装go-dag，提供构建、校验与分层拓扑排序
type Graph struct {
	dag   *godag.DAG[*Node]
	order []string // 声明顺序，保证排序结果稳定
}

// Build 从任务依赖关系构建DAG（对外导出）
// order: 任务声明顺序；deps: 任务ID -> 前置任务ID列表
// 出现环或自引用时返回错误
func Build(order []string, names map[string]string, deps map[string][]string) (*Graph, error) {
	d := godag.NewDAG[*Node]()
	for _, id := range order {
		node := &Node{NodeID: id, Name: names[id]}
		if _, err := d.AddVertex(node); err != nil {
			return nil, fmt.Errorf("添加节点 %s 失败: %w", id, err)
		}
	}
	for _, id := range order {
		for _, dep := range deps[id] {
			if dep == id {
				return nil, fmt.Errorf("任务 %s 依赖自身", id)
			}
			if err := d.AddEdge(dep, id); err != nil {
				// go-dag在成环时拒绝加边
				return nil, fmt.Errorf("依赖 %s -> %s 构成环路: %w", dep, id, err)
			}
		}
	}
	return &Graph{dag: d, order: append([]string{}, order...)}, nil
}

// Children 返回节点的直接下游（对外导出）
func (g *Graph) Children(id string) ([]string, error) {
	children, err := g.dag.GetChildren(id)
	if err != nil {
		return nil, err
	}
	return sortedKeys(children), nil
}

// Parents 返回节点的直接上游（对外导出）
func (g *Graph) Parents(id string) ([]string, error) {
	parents, err := g.dag.GetParents(id)
	if err != nil {
		return nil, err
	}
	return sortedKeys(parents), nil
}

// Roots 返回所有无前置的根节点（对外导出）
func (g *Graph) Roots() []string {
	return sortedKeys(g.dag.GetRoots())
}

// Size 返回节点数（对外导出）
func (g *Graph) Size() int {
	return len(g.dag.GetVertices())
}

// TopologicalLevels 分层拓扑排序（对外导出）
// 每层内的任务互不依赖；层内按声明顺序排列，保证同一定义产出确定的顺序
func (g *Graph) TopologicalLevels() ([][]string, error) {
	indeg := make(map[string]int, len(g.order))
	for _, id := range g.order {
		parents, err := g.dag.GetParents(id)
		if err != nil {
			return nil, err
		}
		indeg[id] = len(parents)
	}

	var levels [][]string
	remaining := len(g.order)
	for remaining > 0 {
		var level []string
		for _, id := range g.order {
			if deg, ok := indeg[id]; ok && deg == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("依赖图存在环路，无法拓扑排序")
		}
		for _, id := range level {
			delete(indeg, id)
			remaining--
			children, err := g.dag.GetChildren(id)
			if err != nil {
				return nil, err
			}
			for childID := range children {
				if _, ok := indeg[childID]; ok {
					indeg[childID]--
				}
			}
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// FlatOrder 返回展平的拓扑顺序（对外导出）
func (g *Graph) FlatOrder() ([]string, error) {
	levels, err := g.TopologicalLevels()
	if err != nil {
		return nil, err
	}
	var flat []string
	for _, level := range levels {
		flat = append(flat, level...)
	}
	return flat, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
