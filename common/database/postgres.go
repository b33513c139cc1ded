package database

import (
	"database/sql"
	"fmt"

	"lifesignal-sync/common/config"

	_ "github.com/lib/pq"
)

// NewPostgresDB 创建PostgreSQL数据库连接
func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	return OpenPostgres(cfg.GetDSN(), cfg.MaxConns, cfg.MaxIdle)
}

// OpenPostgres 通过 DSN（key=value 或 postgres:// URL）打开连接并测试
func OpenPostgres(dsn string, maxConns, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close 关闭数据库连接
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
