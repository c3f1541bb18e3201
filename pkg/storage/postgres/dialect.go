package postgres

import (
	"fmt"
	"strings"
)

// Dialect PostgreSQL方言实现（对外导出）
type Dialect struct{}

// NewDialect 创建PostgreSQL方言实例（对外导出）
func NewDialect() *Dialect {
	return &Dialect{}
}

// Name 返回方言名称
func (d *Dialect) Name() string { return "postgres" }

// DriverName 返回sqlx驱动名
func (d *Dialect) DriverName() string { return "postgres" }

// Placeholder PostgreSQL使用$1、$2形式的占位符
func (d *Dialect) Placeholder(index int) string { return fmt.Sprintf("$%d", index) }

// UpsertSQL 使用ON CONFLICT DO UPDATE语法
func (d *Dialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
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

// ConfigureDB PostgreSQL无需额外配置语句
func (d *Dialect) ConfigureDB() []string { return nil }

// TextType 返回文本类型
func (d *Dialect) TextType() string { return "TEXT" }

// TimestampType 返回时间戳类型
func (d *Dialect) TimestampType() string { return "TIMESTAMP" }
