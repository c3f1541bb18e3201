package storage

// Dialect SQL方言接口（对外导出）
// 封装不同数据库的SQL语法差异
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// DriverName 返回sqlx使用的驱动名
	DriverName() string

	// Placeholder 返回指定位置的占位符
	// SQLite/MySQL: ? (忽略index)
	// PostgreSQL: $1, $2, ...
	Placeholder(index int) string

	// UpsertSQL 返回INSERT或UPDATE的SQL语句
	// tableName: 表名
	// columns: 列名列表
	// conflictColumn: 冲突判断列（通常是主键）
	// updateColumns: 需要更新的列（不含主键）
	UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string

	// ConfigureDB 返回建连后需要执行的配置语句（如SQLite的PRAGMA）
	ConfigureDB() []string

	// TextType 返回文本类型
	TextType() string

	// TimestampType 返回时间戳类型
	TimestampType() string
}
