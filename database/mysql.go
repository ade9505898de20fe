package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ecodeclub/ekit/retry"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"shop-service/config"
)

//go:embed schema.sql
var schema string

// InitDB 建立连接池并等待数据库可用
func InitDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	dsn := mysql.Config{
		User:                 cfg.DBUser,
		Passwd:               cfg.DBPassword,
		Net:                  "tcp",
		Addr:                 net.JoinHostPort(cfg.DBHost, cfg.DBPort),
		DBName:               cfg.DBName,
		ParseTime:            true,
		Loc:                  time.UTC,
		AllowNativePasswords: true,
	}
	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := waitForDB(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func waitForDB(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	strategy, err := retry.NewExponentialBackoffRetryStrategy(500*time.Millisecond, 5*time.Second, 10)
	if err != nil {
		return err
	}
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		next, ok := strategy.Next()
		if !ok {
			return fmt.Errorf("数据库不可用: %w", err)
		}
		logger.Warn("database not ready, retrying", zap.Error(err), zap.Duration("backoff", next))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next):
		}
	}
}

// Migrate 执行建表语句，语句都是幂等的
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行建表语句失败: %w", err)
		}
	}
	return nil
}
