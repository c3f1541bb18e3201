package sqlite

import (
	"fmt"
	"strings"
)

// Dialect SQLite方言实现（对外导出）
type Dialect struct{}

// NewDialect 创建SQLite方言实例（对外导出）
func NewDialect() *Dialect {
	return &Dialect{}
}

// Name 返回方言名称
func (d *Dialect) Name() string { return "sqlite" }

// DriverName 返回sqlx驱动名
func (d *Dialect) DriverName() string { return "sqlite3" }

// Placeholder SQLite使用?占位符
func (d *Dialect) Placeholder(index int) string { return "?" }

// UpsertSQL 使用ON CONFLICT DO UPDATE语法
func (d *Dialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "?"
	}
	sets := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		sets[i] = fmt.Sprintf("%s=excluded.%s", col, col)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		conflictColumn,
		strings.Join(sets, ", "))
}

// ConfigureDB 返回WAL等性能相关的PRAGMA
func (d *Dialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA wal_autocheckpoint=1000;",
		"PRAGMA synchronous=NORMAL;",
	}
}

// TextType 返回文本类型
func (d *Dialect) TextType() string { return "TEXT" }

// TimestampType 返回时间戳类型
func (d *Dialect) TimestampType() string { return "DATETIME" }
