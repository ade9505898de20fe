package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"shop-service/errs"
	"shop-service/models"
)

const orderColumns = "id, user_id, shipping_address, total_amount, discount_amount, final_amount, voucher_id, voucher_code, status, is_paid, payment_method, payment_time, note, created_at, updated_at"

type OrderRepository struct {
	db querier
}

func NewOrderRepository(db querier) *OrderRepository {
	return &OrderRepository{db: db}
}

// Insert 订单和订单项在同一个事务里写入
func (r *OrderRepository) Insert(ctx context.Context, o models.Order) error {
	err := withTx(ctx, r.db, func(q querier) error {
		_, err := q.ExecContext(ctx,
			"INSERT INTO orders ("+orderColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			o.ID, o.UserID, o.ShippingAddress, o.TotalAmount, o.DiscountAmount, o.FinalAmount,
			o.VoucherID, o.VoucherCode, string(o.Status), o.IsPaid, string(o.PaymentMethod),
			nullTime(o.PaymentTime), o.Note, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return err
		}
		if len(o.Items) == 0 {
			return nil
		}

		values := make([]string, 0, len(o.Items))
		args := make([]any, 0, len(o.Items)*9)
		for _, it := range o.Items {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, o.ID, it.ProductID, it.SizeID, it.Name, it.Image, it.Color, it.Size, it.Quantity, it.Price)
		}
		_, err = q.ExecContext(ctx,
			"INSERT INTO order_items (order_id, product_id, size_id, name, image, color, size, quantity, price) VALUES "+strings.Join(values, ", "),
			args...)
		return err
	})
	return errs.Storage(err)
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (models.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, errs.ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, errs.Storage(err)
	}
	orders := []models.Order{o}
	if err := r.loadItems(ctx, orders); err != nil {
		return models.Order{}, err
	}
	return orders[0], nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]models.Order, error) {
	return r.list(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?",
		userID, limit, offset)
}

func (r *OrderRepository) List(ctx context.Context, offset, limit int) ([]models.Order, error) {
	return r.list(ctx,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, offset)
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage(err)
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errs.Storage(err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage(err)
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT order_id, product_id, size_id, name, image, color, size, quantity, price FROM order_items WHERE order_id IN ("+placeholders(len(ids))+") ORDER BY id",
		toArgs(ids)...)
	if err != nil {
		return errs.Storage(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			it      models.OrderItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.SizeID, &it.Name, &it.Image, &it.Color, &it.Size, &it.Quantity, &it.Price); err != nil {
			return errs.Storage(err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return errs.Storage(rows.Err())
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, now time.Time) (bool, error) {
	return r.updateStatus(ctx,
		"UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		id, from, to, now)
}

// UpdateStatusIfUnpaid 和 MarkPaid 对同一行互斥，二者只有一个能生效
func (r *OrderRepository) UpdateStatusIfUnpaid(ctx context.Context, id string, from, to models.OrderStatus, now time.Time) (bool, error) {
	return r.updateStatus(ctx,
		"UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ? AND is_paid = 0",
		id, from, to, now)
}

func (r *OrderRepository) updateStatus(ctx context.Context, query, id string, from, to models.OrderStatus, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, string(to), now, id, string(from))
	if err != nil {
		return false, errs.Storage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Storage(err)
	}
	return n > 0, nil
}

// MarkPaid 已支付的订单不会被重复打时间戳
func (r *OrderRepository) MarkPaid(ctx context.Context, id string, method models.PaymentMethod, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET is_paid = 1, payment_method = ?, payment_time = ?, updated_at = ? WHERE id = ? AND is_paid = 0",
		string(method), at, at, id)
	if err != nil {
		return false, errs.Storage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Storage(err)
	}
	return n > 0, nil
}

func scanOrder(s scanner) (models.Order, error) {
	var (
		o           models.Order
		status      string
		method      string
		paymentTime sql.NullTime
	)
	err := s.Scan(&o.ID, &o.UserID, &o.ShippingAddress, &o.TotalAmount, &o.DiscountAmount, &o.FinalAmount,
		&o.VoucherID, &o.VoucherCode, &status, &o.IsPaid, &method, &paymentTime, &o.Note, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.Status = models.OrderStatus(status)
	o.PaymentMethod = models.PaymentMethod(method)
	if paymentTime.Valid {
		t := paymentTime.Time
		o.PaymentTime = &t
	}
	return o, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
