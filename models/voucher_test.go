package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"shop-service/errs"
)

func TestVoucher_Evaluate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := Voucher{
		ID:        "v1",
		Code:      "SUMMER",
		Quantity:  10,
		StartDate: now.Add(-24 * time.Hour),
		EndDate:   now.Add(24 * time.Hour),
		IsActive:  true,
	}

	testCases := []struct {
		name     string
		voucher  func() Voucher
		subtotal int64
		wantDisc int64
		wantErr  error
	}{
		{
			name: "百分比折扣封顶",
			voucher: func() Voucher {
				v := base
				v.DiscountType = DiscountPercent
				v.DiscountValue = decimal.NewFromInt(10)
				v.MaxDiscount = 5000
				return v
			},
			subtotal: 100000,
			wantDisc: 5000,
		},
		{
			name: "百分比折扣未达封顶",
			voucher: func() Voucher {
				v := base
				v.DiscountType = DiscountPercent
				v.DiscountValue = decimal.NewFromInt(10)
				v.MaxDiscount = 50000
				return v
			},
			subtotal: 100000,
			wantDisc: 10000,
		},
		{
			name: "百分比向下取整",
			voucher: func() Voucher {
				v := base
				v.DiscountType = DiscountPercent
				v.DiscountValue = decimal.RequireFromString("12.5")
				return v
			},
			subtotal: 999,
			wantDisc: 124,
		},
		{
			name: "固定金额低于门槛",
			voucher: func() Voucher {
				v := base
				v.DiscountType = DiscountFixed
				v.DiscountValue = decimal.NewFromInt(20000)
				v.MinOrderValue = 20000
				return v
			},
			subtotal: 15000,
			wantErr:  errs.ErrVoucherBelowMin,
		},
		{
			name: "固定金额不超过订单金额",
			voucher: func() Voucher {
				v := base
				v.DiscountType = DiscountFixed
				v.DiscountValue = decimal.NewFromInt(20000)
				return v
			},
			subtotal: 15000,
			wantDisc: 15000,
		},
		{
			name: "未激活",
			voucher: func() Voucher {
				v := base
				v.IsActive = false
				return v
			},
			subtotal: 15000,
			wantErr:  errs.ErrVoucherNotFound,
		},
		{
			name: "未开始",
			voucher: func() Voucher {
				v := base
				v.StartDate = now.Add(time.Hour)
				return v
			},
			subtotal: 15000,
			wantErr:  errs.ErrVoucherWindow,
		},
		{
			name: "已过期",
			voucher: func() Voucher {
				v := base
				v.EndDate = now.Add(-time.Second)
				return v
			},
			subtotal: 15000,
			wantErr:  errs.ErrVoucherWindow,
		},
		{
			name: "次数用完",
			voucher: func() Voucher {
				v := base
				v.Quantity = 0
				return v
			},
			subtotal: 15000,
			wantErr:  errs.ErrVoucherExhausted,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			disc, err := tc.voucher().Evaluate(tc.subtotal, now)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.wantDisc, disc)
		})
	}
}

func TestVoucher_EvaluateIneligibleKind(t *testing.T) {
	now := time.Now()
	v := Voucher{
		DiscountType:  DiscountFixed,
		DiscountValue: decimal.NewFromInt(20000),
		MinOrderValue: 20000,
		Quantity:      1,
		StartDate:     now.Add(-time.Hour),
		EndDate:       now.Add(time.Hour),
		IsActive:      true,
	}
	_, err := v.Evaluate(15000, now)
	assert.Equal(t, errs.KindVoucherIneligible, errs.KindOf(err))
}

func TestCanonicalCode(t *testing.T) {
	assert.Equal(t, "SALE10", CanonicalCode(" sale10 "))
}
