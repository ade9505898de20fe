package services

import (
	"context"
	"time"

	"github.com/ecodeclub/ekit/slice"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shop-service/errs"
	"shop-service/models"
	"shop-service/repository"
)

type VoucherService struct {
	vouchers repository.VoucherStore
	now      func() time.Time
}

func NewVoucherService(vouchers repository.VoucherStore) *VoucherService {
	return &VoucherService{vouchers: vouchers, now: time.Now}
}

// Apply 结账前预览，和下单用同一套校验和计算，不消耗次数
func (s *VoucherService) Apply(ctx context.Context, code string, subtotal int64) (preview models.VoucherPreview, err error) {
	ctx, span := tracer.Start(ctx, "VoucherService.Apply", trace.WithAttributes(
		attribute.String("voucher.code", models.CanonicalCode(code)),
		attribute.Int64("order.subtotal", subtotal),
	))
	defer func() { endSpan(span, err) }()

	code = models.CanonicalCode(code)
	if code == "" {
		return models.VoucherPreview{}, errs.ErrValidation.WithMsg("voucher code is required")
	}
	if subtotal < 0 {
		return models.VoucherPreview{}, errs.ErrValidation.WithMsg("order total must not be negative")
	}

	v, err := s.vouchers.FindActiveByCode(ctx, code)
	if err != nil {
		return models.VoucherPreview{}, err
	}
	if v == nil {
		return models.VoucherPreview{}, errs.ErrVoucherNotFound
	}
	discount, err := v.Evaluate(subtotal, s.now())
	if err != nil {
		return models.VoucherPreview{}, err
	}
	return models.VoucherPreview{
		VoucherID:      v.ID,
		Code:           v.Code,
		DiscountAmount: discount,
		FinalPrice:     subtotal - discount,
	}, nil
}

// ListAvailable 已到展示时间、未过期、还有次数的优惠券；未到开始时间的 CanUse 为 false
func (s *VoucherService) ListAvailable(ctx context.Context) ([]models.AvailableVoucher, error) {
	now := s.now()
	vs, err := s.vouchers.ListVisible(ctx, now)
	if err != nil {
		return nil, err
	}
	return slice.Map(vs, func(_ int, v models.Voucher) models.AvailableVoucher {
		return models.AvailableVoucher{
			Voucher: v,
			CanUse:  !now.Before(v.StartDate),
		}
	}), nil
}
