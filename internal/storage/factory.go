package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	// 数据库驱动
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/stevelan1995/workflow-engine/pkg/config"
	pkgstorage "github.com/stevelan1995/workflow-engine/pkg/storage"
	"github.com/stevelan1995/workflow-engine/pkg/storage/mysql"
	"github.com/stevelan1995/workflow-engine/pkg/storage/postgres"
	"github.com/stevelan1995/workflow-engine/pkg/storage/sqlite"
	"github.com/stevelan1995/workflow-engine/pkg/storage/sqlrepo"
)

// NewRunRepository 按配置创建运行记录仓储（对外导出）
// 支持 sqlite / mysql / postgres 三种后端
func NewRunRepository(cfg *config.Config) (pkgstorage.RunRepository, error) {
	var dialect pkgstorage.Dialect
	var dsn string

	switch cfg.Database.Type {
	case "", "sqlite":
		dialect = sqlite.NewDialect()
		path := cfg.Database.Path
		if path == "" {
			path = "workflow-engine.db"
		}
		dsn = path
	case "mysql":
		dialect = mysql.NewDialect()
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	case "postgres":
		dialect = postgres.NewDialect()
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.DBName)
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", cfg.Database.Type)
	}

	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("配置数据库失败: %w", err)
		}
	}

	return sqlrepo.NewRunRepo(db, dialect)
}
