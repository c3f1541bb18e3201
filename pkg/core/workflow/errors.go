package workflow

import (
	"errors"
	"fmt"
)

// ValidationError 工作流定义校验错误（对外导出）
// 定义类错误不可重试，提交前必须修正
type ValidationError struct {
	WorkflowID string
	Reason     string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	if e.WorkflowID == "" {
		return fmt.Sprintf("工作流定义无效: %s", e.Reason)
	}
	return fmt.Sprintf("工作流 %s 定义无效: %s", e.WorkflowID, e.Reason)
}

// NewValidationError 创建校验错误（对外导出）
func NewValidationError(workflowID, format string, args ...interface{}) *ValidationError {
	return &ValidationError{WorkflowID: workflowID, Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError 判断是否为校验错误（对外导出）
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrorKind 执行错误的类别（对外导出）
type ErrorKind string

const (
	ErrKindTimeout             ErrorKind = "timeout"              // 任务执行超时
	ErrKindHandler             ErrorKind = "handler_error"        // 处理函数返回错误
	ErrKindResourceUnavailable ErrorKind = "resource_unavailable" // 等待资源超时或无可用Worker
	ErrKindWorkerUnreachable   ErrorKind = "worker_unreachable"   // Worker失联
	ErrKindCancelled           ErrorKind = "cancelled"            // 运行被取消
)

// ExecutionError 任务执行错误（对外导出）
type ExecutionError struct {
	Kind   ErrorKind
	TaskID string
	Err    error
}

// Error 实现error接口
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("任务 %s 执行失败 [%s]: %v", e.TaskID, e.Kind, e.Err)
}

// Unwrap 支持errors.Is/As链式匹配
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError 创建执行错误（对外导出）
func NewExecutionError(kind ErrorKind, taskID string, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, TaskID: taskID, Err: err}
}

// KindOf 提取错误类别，非ExecutionError返回ErrKindHandler（对外导出）
func KindOf(err error) ErrorKind {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ErrKindHandler
}
