package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"shop-service/models"
)

type VoucherRepository struct {
	mu       sync.RWMutex
	vouchers map[string]*models.Voucher
	byCode   map[string]string
}

func NewVoucherRepository() *VoucherRepository {
	return &VoucherRepository{
		vouchers: make(map[string]*models.Voucher),
		byCode:   make(map[string]string),
	}
}

func (r *VoucherRepository) Put(v models.Voucher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v.Code = models.CanonicalCode(v.Code)
	cp := v
	r.vouchers[v.ID] = &cp
	r.byCode[v.Code] = v.ID
}

func (r *VoucherRepository) FindActiveByCode(ctx context.Context, code string) (*models.Voucher, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[models.CanonicalCode(code)]
	if !ok {
		return nil, nil
	}
	v := r.vouchers[id]
	if !v.IsActive {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (r *VoucherRepository) ConditionalDecrementUse(ctx context.Context, voucherID string) (bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vouchers[voucherID]
	if !ok || v.Quantity <= 0 {
		return false, nil
	}
	v.Quantity--
	return true, nil
}

func (r *VoucherRepository) RestoreUse(ctx context.Context, voucherID string) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.vouchers[voucherID]; ok {
		v.Quantity++
	}
	return nil
}

func (r *VoucherRepository) ListVisible(ctx context.Context, now time.Time) ([]models.Voucher, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]models.Voucher, 0)
	for _, v := range r.vouchers {
		if v.Visible(now) {
			res = append(res, *v)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].EndDate.Before(res[j].EndDate)
	})
	return res, nil
}

// Remaining 剩余次数，测试断言用
func (r *VoucherRepository) Remaining(voucherID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.vouchers[voucherID]; ok {
		return v.Quantity
	}
	return 0
}
