package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shop-service/errs"
)

type DiscountType string

const (
	DiscountFixed   DiscountType = "fixed"
	DiscountPercent DiscountType = "percent"
)

type Voucher struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Description   string          `json:"description,omitempty"`
	DiscountType  DiscountType    `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	MinOrderValue int64           `json:"minOrderValue"`
	// MaxDiscount 只对 percent 生效，0 表示不封顶
	MaxDiscount int64     `json:"maxDiscount,omitempty"`
	Quantity    int       `json:"quantity"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	ShowAt      time.Time `json:"showAt"`
	IsActive    bool      `json:"isActive"`
}

// CanonicalCode 优惠码大小写不敏感，统一存大写
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Evaluate 校验优惠券在 now 时刻对 subtotal 是否可用，并计算抵扣金额。
// 下单和预览共用这一个方法。
func (v Voucher) Evaluate(subtotal int64, now time.Time) (int64, error) {
	if !v.IsActive {
		return 0, errs.ErrVoucherNotFound
	}
	if now.Before(v.StartDate) || now.After(v.EndDate) {
		return 0, errs.ErrVoucherWindow
	}
	if v.Quantity <= 0 {
		return 0, errs.ErrVoucherExhausted
	}
	if subtotal < v.MinOrderValue {
		return 0, errs.ErrVoucherBelowMin
	}
	return v.Discount(subtotal), nil
}

// Discount 折扣金额向下取整，且不超过订单金额
func (v Voucher) Discount(subtotal int64) int64 {
	var discount int64
	switch v.DiscountType {
	case DiscountPercent:
		discount = decimal.NewFromInt(subtotal).
			Mul(v.DiscountValue).
			Div(decimal.NewFromInt(100)).
			Floor().
			IntPart()
		if v.MaxDiscount > 0 && discount > v.MaxDiscount {
			discount = v.MaxDiscount
		}
	default:
		discount = v.DiscountValue.Floor().IntPart()
	}
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}

// Visible 对用户展示：showAt <= now <= endDate
func (v Voucher) Visible(now time.Time) bool {
	return v.IsActive && v.Quantity > 0 && !now.Before(v.ShowAt) && !now.After(v.EndDate)
}

// VoucherPreview 预览结果，不消耗次数
type VoucherPreview struct {
	VoucherID      string `json:"voucherId"`
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discountAmount"`
	FinalPrice     int64  `json:"finalPrice"`
}

// AvailableVoucher 列表展示用，CanUse 表示已过开始时间
type AvailableVoucher struct {
	Voucher
	CanUse bool `json:"canUse"`
}
