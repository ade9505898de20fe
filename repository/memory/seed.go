package memory

import (
	"time"

	"github.com/shopspring/decimal"

	"shop-service/models"
)

// Seed 写入演示用的商品和优惠券，STORAGE_DRIVER=memory 本地启动时可以直接下单
func (s *Store) Seed(now time.Time) {
	s.Catalog.Put(models.Product{
		ID:     "demo-tee",
		Code:   "TS-001",
		Name:   "Basic Tee",
		Price:  150000,
		Images: []string{"/static/tee.jpg"},
		Colors: []string{"white", "black"},
		QuantityBySize: []models.SizeStock{
			{SizeID: "S", Name: "S", Quantity: 20},
			{SizeID: "M", Name: "M", Quantity: 30},
			{SizeID: "L", Name: "L", Quantity: 15},
		},
	})
	s.Catalog.Put(models.Product{
		ID:     "demo-jeans",
		Code:   "JN-001",
		Name:   "Slim Jeans",
		Price:  450000,
		Images: []string{"/static/jeans.jpg"},
		Colors: []string{"blue"},
		QuantityBySize: []models.SizeStock{
			{SizeID: "30", Name: "30", Quantity: 10},
			{SizeID: "32", Name: "32", Quantity: 8},
		},
	})
	s.Vouchers.Put(models.Voucher{
		ID:            "demo-welcome",
		Code:          "WELCOME10",
		Description:   "10% off, up to 50k",
		DiscountType:  models.DiscountPercent,
		DiscountValue: decimal.NewFromInt(10),
		MaxDiscount:   50000,
		Quantity:      100,
		StartDate:     now.Add(-time.Hour),
		EndDate:       now.AddDate(0, 1, 0),
		ShowAt:        now.Add(-time.Hour),
		IsActive:      true,
	})
}
