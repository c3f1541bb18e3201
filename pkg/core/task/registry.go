package task

import (
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc 任务处理函数签名（对外导出）
// 输出map会以任务定义ID为键写入运行上下文，供下游任务与分支条件使用。
// 分布式场景下任务可能被重复派发，处理函数必须幂等
type HandlerFunc func(ctx *Context) (map[string]interface{}, error)

// FunctionRegistry 处理函数注册中心（对外导出）
// 任务定义只记录函数名，派发时在本地注册中心解析
type FunctionRegistry struct {
	mu           sync.RWMutex
	handlers     map[string]HandlerFunc
	descriptions map[string]string
}

// NewFunctionRegistry 创建注册中心实例（对外导出）
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		handlers:     make(map[string]HandlerFunc),
		descriptions: make(map[string]string),
	}
}

// Register 注册处理函数（对外导出）
// 重名注册返回错误
func (r *FunctionRegistry) Register(name string, fn HandlerFunc, description string) error {
	if name == "" {
		return fmt.Errorf("处理函数名称不能为空")
	}
	if fn == nil {
		return fmt.Errorf("处理函数不能为nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("处理函数 %s 已注册", name)
	}
	r.handlers[name] = fn
	r.descriptions[name] = description
	return nil
}

// MustRegister 注册处理函数，失败时panic（对外导出，仅用于启动期装配）
func (r *FunctionRegistry) MustRegister(name string, fn HandlerFunc, description string) {
	if err := r.Register(name, fn, description); err != nil {
		panic(err)
	}
}

// Get 按名称解析处理函数（对外导出）
func (r *FunctionRegistry) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}

// Has 判断处理函数是否已注册（对外导出）
func (r *FunctionRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Names 返回已注册的全部函数名，按字典序（对外导出）
func (r *FunctionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister 注销处理函数（对外导出）
func (r *FunctionRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
	delete(r.descriptions, name)
}
