package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stevelan1995/workflow-engine/pkg/core/workflow"
	"github.com/stevelan1995/workflow-engine/pkg/storage"
)

// RunRepo RunRepository的sqlx通用实现（对外导出）
// SQL语法差异通过Dialect注入，SQLite/MySQL/PostgreSQL共用同一套逻辑
type RunRepo struct {
	db      *sqlx.DB
	dialect storage.Dialect
}

// NewRunRepo 创建仓储实例并初始化表结构（对外导出）
func NewRunRepo(db *sqlx.DB, dialect storage.Dialect) (*RunRepo, error) {
	repo := &RunRepo{db: db, dialect: dialect}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return repo, nil
}

// initSchema 初始化数据库表结构
func (r *RunRepo) initSchema() error {
	text := r.dialect.TextType()
	createRunSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS workflow_run (
		id %s PRIMARY KEY,
		workflow_id %s NOT NULL,
		workflow_name %s,
		status %s NOT NULL,
		context %s,
		error_message %s,
		create_time %s NOT NULL,
		start_time %s,
		end_time %s
	);`, text, text, text, text, text, text, text, text, text)

	createTaskSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS task_execution (
		instance_id %s NOT NULL,
		run_id %s NOT NULL,
		task_id %s NOT NULL,
		iteration INTEGER NOT NULL DEFAULT 0,
		status %s NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		output %s,
		error_message %s,
		start_time %s,
		end_time %s,
		PRIMARY KEY (run_id, instance_id)
	);`, text, text, text, text, text, text, text, text)

	createIndexSQL := `CREATE INDEX IF NOT EXISTS idx_workflow_run_workflow_id ON workflow_run(workflow_id);`

	for _, ddl := range []string{createRunSQL, createTaskSQL, createIndexSQL} {
		if _, err := r.db.Exec(ddl); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭数据库连接（对外导出）
func (r *RunRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// runRow workflow_run表的行结构
type runRow struct {
	ID           string         `db:"id"`
	WorkflowID   string         `db:"workflow_id"`
	WorkflowName string         `db:"workflow_name"`
	Status       string         `db:"status"`
	Context      string         `db:"context"`
	ErrorMessage string         `db:"error_message"`
	CreateTime   string         `db:"create_time"`
	StartTime    sql.NullString `db:"start_time"`
	EndTime      sql.NullString `db:"end_time"`
}

// taskRow task_execution表的行结构
type taskRow struct {
	InstanceID   string         `db:"instance_id"`
	RunID        string         `db:"run_id"`
	TaskID       string         `db:"task_id"`
	Iteration    int            `db:"iteration"`
	Status       string         `db:"status"`
	Attempts     int            `db:"attempts"`
	Output       string         `db:"output"`
	ErrorMessage string         `db:"error_message"`
	StartTime    sql.NullString `db:"start_time"`
	EndTime      sql.NullString `db:"end_time"`
}

// SaveRun 幂等保存运行快照（对外导出）
// 运行主行走方言Upsert，任务实例整体先删后插，整个过程在一个事务内
func (r *RunRepo) SaveRun(ctx context.Context, snap *workflow.RunSnapshot) error {
	contextJSON, err := json.Marshal(snap.Context)
	if err != nil {
		return fmt.Errorf("序列化运行上下文失败: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	runColumns := []string{"id", "workflow_id", "workflow_name", "status", "context", "error_message", "create_time", "start_time", "end_time"}
	updateColumns := []string{"status", "context", "error_message", "start_time", "end_time"}
	upsert := r.dialect.UpsertSQL("workflow_run", runColumns, "id", updateColumns)
	if _, err := tx.ExecContext(ctx, upsert,
		snap.ID, snap.WorkflowID, snap.WorkflowName, string(snap.Status), string(contextJSON),
		snap.Error, formatTime(&snap.CreateTime), formatTimePtr(snap.StartTime), formatTimePtr(snap.EndTime)); err != nil {
		return fmt.Errorf("保存运行记录失败: %w", err)
	}

	deleteSQL := fmt.Sprintf("DELETE FROM task_execution WHERE run_id = %s", r.dialect.Placeholder(1))
	if _, err := tx.ExecContext(ctx, deleteSQL, snap.ID); err != nil {
		return fmt.Errorf("清理任务记录失败: %w", err)
	}

	insertSQL := fmt.Sprintf(
		"INSERT INTO task_execution (instance_id, run_id, task_id, iteration, status, attempts, output, error_message, start_time, end_time) VALUES (%s)",
		r.placeholders(10))
	for instanceID, exec := range snap.Tasks {
		outputJSON := ""
		if exec.Output != nil {
			data, err := json.Marshal(exec.Output)
			if err != nil {
				return fmt.Errorf("序列化任务输出失败: %w", err)
			}
			outputJSON = string(data)
		}
		if _, err := tx.ExecContext(ctx, insertSQL,
			instanceID, snap.ID, exec.TaskID, exec.Iteration, string(exec.Status), exec.Attempts,
			outputJSON, exec.Error, formatTimePtr(exec.StartTime), formatTimePtr(exec.EndTime)); err != nil {
			return fmt.Errorf("保存任务记录失败: %w", err)
		}
	}

	return tx.Commit()
}

// GetRun 按运行ID读取快照（对外导出）
func (r *RunRepo) GetRun(ctx context.Context, runID string) (*workflow.RunSnapshot, error) {
	var row runRow
	querySQL := fmt.Sprintf("SELECT * FROM workflow_run WHERE id = %s", r.dialect.Placeholder(1))
	if err := r.db.GetContext(ctx, &row, querySQL, runID); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrRunNotFound
		}
		return nil, err
	}

	var taskRows []taskRow
	taskSQL := fmt.Sprintf("SELECT * FROM task_execution WHERE run_id = %s", r.dialect.Placeholder(1))
	if err := r.db.SelectContext(ctx, &taskRows, taskSQL, runID); err != nil {
		return nil, err
	}

	return r.toSnapshot(&row, taskRows)
}

// ListRuns 按工作流ID列出运行快照（对外导出）
func (r *RunRepo) ListRuns(ctx context.Context, workflowID string, limit int) ([]*workflow.RunSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []runRow
	var err error
	if workflowID == "" {
		querySQL := fmt.Sprintf("SELECT * FROM workflow_run ORDER BY create_time DESC LIMIT %d", limit)
		err = r.db.SelectContext(ctx, &rows, querySQL)
	} else {
		querySQL := fmt.Sprintf("SELECT * FROM workflow_run WHERE workflow_id = %s ORDER BY create_time DESC LIMIT %d",
			r.dialect.Placeholder(1), limit)
		err = r.db.SelectContext(ctx, &rows, querySQL, workflowID)
	}
	if err != nil {
		return nil, err
	}

	snaps := make([]*workflow.RunSnapshot, 0, len(rows))
	for i := range rows {
		var taskRows []taskRow
		taskSQL := fmt.Sprintf("SELECT * FROM task_execution WHERE run_id = %s", r.dialect.Placeholder(1))
		if err := r.db.SelectContext(ctx, &taskRows, taskSQL, rows[i].ID); err != nil {
			return nil, err
		}
		snap, err := r.toSnapshot(&rows[i], taskRows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// DeleteRun 删除运行记录（对外导出）
func (r *RunRepo) DeleteRun(ctx context.Context, runID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	taskSQL := fmt.Sprintf("DELETE FROM task_execution WHERE run_id = %s", r.dialect.Placeholder(1))
	if _, err := tx.ExecContext(ctx, taskSQL, runID); err != nil {
		return err
	}
	runSQL := fmt.Sprintf("DELETE FROM workflow_run WHERE id = %s", r.dialect.Placeholder(1))
	if _, err := tx.ExecContext(ctx, runSQL, runID); err != nil {
		return err
	}
	return tx.Commit()
}

// toSnapshot 行结构转运行快照
func (r *RunRepo) toSnapshot(row *runRow, taskRows []taskRow) (*workflow.RunSnapshot, error) {
	snap := &workflow.RunSnapshot{
		ID:           row.ID,
		WorkflowID:   row.WorkflowID,
		WorkflowName: row.WorkflowName,
		Status:       workflow.Status(row.Status),
		Tasks:        make(map[string]workflow.TaskExecution, len(taskRows)),
		Context:      make(map[string]interface{}),
		Error:        row.ErrorMessage,
	}
	if row.Context != "" {
		if err := json.Unmarshal([]byte(row.Context), &snap.Context); err != nil {
			return nil, fmt.Errorf("反序列化运行上下文失败: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, row.CreateTime); err == nil {
		snap.CreateTime = t
	}
	snap.StartTime = parseTimePtr(row.StartTime)
	snap.EndTime = parseTimePtr(row.EndTime)

	for _, tr := range taskRows {
		exec := workflow.TaskExecution{
			InstanceID: tr.InstanceID,
			TaskID:     tr.TaskID,
			Iteration:  tr.Iteration,
			Status:     workflow.TaskStatus(tr.Status),
			Attempts:   tr.Attempts,
			Error:      tr.ErrorMessage,
			StartTime:  parseTimePtr(tr.StartTime),
			EndTime:    parseTimePtr(tr.EndTime),
		}
		if tr.Output != "" {
			if err := json.Unmarshal([]byte(tr.Output), &exec.Output); err != nil {
				return nil, fmt.Errorf("反序列化任务输出失败: %w", err)
			}
		}
		snap.Tasks[tr.InstanceID] = exec
	}
	return snap, nil
}

// placeholders 构造n个占位符的逗号列表
func (r *RunRepo) placeholders(n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = r.dialect.Placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}
