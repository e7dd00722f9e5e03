package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/config"

	_ "github.com/lib/pq"
)

// PingTimeout bounds the connectivity check of NewPostgresDB.
const PingTimeout = 5 * time.Second

// connMaxIdleTime 空闲连接回收时间
const connMaxIdleTime = 5 * time.Minute

// NewPostgresDB 创建PostgreSQL数据库连接（STORAGE_DRIVER=postgres）
func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	Configure(db, cfg)
	if err := Ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Configure 设置连接池参数；idle 不超过 max
func Configure(db *sql.DB, cfg *config.DatabaseConfig) {
	maxIdle := cfg.MaxIdle
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		if maxIdle > cfg.MaxConns {
			maxIdle = cfg.MaxConns
		}
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxIdleTime(connMaxIdleTime)
}

// Ping checks connectivity within PingTimeout.
func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
