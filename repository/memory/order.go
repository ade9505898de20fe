package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"shop-service/errs"
	"shop-service/models"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*models.Order),
	}
}

func (r *OrderRepository) Insert(ctx context.Context, order models.Order) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return errs.ErrStorage.WithMsg("duplicate order id")
	}
	cp := order.Clone()
	r.orders[order.ID] = &cp
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (models.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return models.Order{}, errs.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]models.Order, error) {
	return r.list(ctx, func(o *models.Order) bool { return o.UserID == userID }, offset, limit)
}

func (r *OrderRepository) List(ctx context.Context, offset, limit int) ([]models.Order, error) {
	return r.list(ctx, func(o *models.Order) bool { return true }, offset, limit)
}

func (r *OrderRepository) list(ctx context.Context, match func(o *models.Order) bool, offset, limit int) ([]models.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]models.Order, 0)
	for _, o := range r.orders {
		if match(o) {
			all = append(all, o.Clone())
		}
	}
	// 新订单在前
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []models.Order{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, now time.Time) (bool, error) {
	return r.updateStatus(ctx, id, from, to, now, false)
}

func (r *OrderRepository) UpdateStatusIfUnpaid(ctx context.Context, id string, from, to models.OrderStatus, now time.Time) (bool, error) {
	return r.updateStatus(ctx, id, from, to, now, true)
}

func (r *OrderRepository) updateStatus(ctx context.Context, id string, from, to models.OrderStatus, now time.Time, unpaidOnly bool) (bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return false, errs.ErrOrderNotFound
	}
	if o.Status != from || (unpaidOnly && o.IsPaid) {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = now
	return true, nil
}

func (r *OrderRepository) MarkPaid(ctx context.Context, id string, method models.PaymentMethod, at time.Time) (bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return false, errs.ErrOrderNotFound
	}
	if o.IsPaid {
		return false, nil
	}
	t := at
	o.IsPaid = true
	o.PaymentMethod = method
	o.PaymentTime = &t
	o.UpdatedAt = at
	return true, nil
}
