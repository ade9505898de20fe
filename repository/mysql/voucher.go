package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shop-service/errs"
	"shop-service/models"
)

const voucherColumns = "id, code, description, discount_type, discount_value, min_order_value, max_discount, quantity, start_date, end_date, show_at, is_active"

type VoucherRepository struct {
	db querier
}

func NewVoucherRepository(db querier) *VoucherRepository {
	return &VoucherRepository{db: db}
}

func (r *VoucherRepository) FindActiveByCode(ctx context.Context, code string) (*models.Voucher, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+voucherColumns+" FROM vouchers WHERE code = ? AND is_active = 1",
		models.CanonicalCode(code))
	v, err := scanVoucher(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage(err)
	}
	return &v, nil
}

func (r *VoucherRepository) ConditionalDecrementUse(ctx context.Context, voucherID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE vouchers SET quantity = quantity - 1 WHERE id = ? AND quantity > 0",
		voucherID)
	if err != nil {
		return false, errs.Storage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Storage(err)
	}
	return n > 0, nil
}

func (r *VoucherRepository) RestoreUse(ctx context.Context, voucherID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE vouchers SET quantity = quantity + 1 WHERE id = ?",
		voucherID)
	return errs.Storage(err)
}

func (r *VoucherRepository) ListVisible(ctx context.Context, now time.Time) ([]models.Voucher, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+voucherColumns+" FROM vouchers WHERE is_active = 1 AND quantity > 0 AND show_at <= ? AND end_date >= ? ORDER BY end_date",
		now, now)
	if err != nil {
		return nil, errs.Storage(err)
	}
	defer rows.Close()

	res := make([]models.Voucher, 0)
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, errs.Storage(err)
		}
		res = append(res, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err)
	}
	return res, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVoucher(s scanner) (models.Voucher, error) {
	var v models.Voucher
	err := s.Scan(&v.ID, &v.Code, &v.Description, &v.DiscountType, &v.DiscountValue,
		&v.MinOrderValue, &v.MaxDiscount, &v.Quantity, &v.StartDate, &v.EndDate, &v.ShowAt, &v.IsActive)
	return v, err
}
