// Package mysql 基于 database/sql 的仓储实现，库存和优惠券扣减都是条件 UPDATE。
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"

	"shop-service/errs"
	"shop-service/repository"
)

// querier *sql.DB 和 *sql.Tx 都满足
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Stores() repository.Stores {
	return storesOn(s.db)
}

// erDeadlock InnoDB 检测到死锁后回滚其中一个事务
const erDeadlock = 1213

// InTx fn 返回错误或 panic 时整个事务回滚。
// 被选为死锁牺牲者的事务已经整体回滚，重做一次。
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Stores) error) error {
	err := s.inTx(ctx, fn)
	if isDeadlock(err) {
		err = s.inTx(ctx, fn)
	}
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, tx repository.Stores) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage(err)
	}
	defer func() {
		// 提交后再回滚会返回 sql.ErrTxDone，忽略
		_ = tx.Rollback()
	}()

	if err := fn(ctx, storesOn(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Storage(err)
	}
	return nil
}

func isDeadlock(err error) bool {
	var me *mysqldrv.MySQLError
	return errors.As(err, &me) && me.Number == erDeadlock
}

func storesOn(q querier) repository.Stores {
	return repository.Stores{
		Catalog:  &CatalogRepository{db: q},
		Vouchers: &VoucherRepository{db: q},
		Orders:   &OrderRepository{db: q},
	}
}

// withTx 在 *sql.DB 上开一个短事务；已经处在事务中时直接执行
func withTx(ctx context.Context, q querier, fn func(q querier) error) error {
	db, ok := q.(*sql.DB)
	if !ok {
		return fn(q)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
