package repository

import (
	"context"
	"time"

	"shop-service/models"
)

// CatalogStore 商品与分尺码库存。库存扣减必须是存储层的条件原子操作。
type CatalogStore interface {
	FindProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	// ConditionalDecrementStock 仅当库存 >= amount 时扣减，库存不足返回 false
	ConditionalDecrementStock(ctx context.Context, productID, sizeID string, amount int) (bool, error)
	IncrementStock(ctx context.Context, productID, sizeID string, amount int) error
	AccrueSold(ctx context.Context, productID string, amount int) error
	// ReduceSold 减到 0 为止
	ReduceSold(ctx context.Context, productID string, amount int) error
}

type VoucherStore interface {
	// FindActiveByCode 找不到或未激活时返回 nil, nil
	FindActiveByCode(ctx context.Context, code string) (*models.Voucher, error)
	// ConditionalDecrementUse 仅当剩余次数 > 0 时扣减
	ConditionalDecrementUse(ctx context.Context, voucherID string) (bool, error)
	RestoreUse(ctx context.Context, voucherID string) error
	ListVisible(ctx context.Context, now time.Time) ([]models.Voucher, error)
}

type OrderStore interface {
	Insert(ctx context.Context, order models.Order) error
	FindByID(ctx context.Context, id string) (models.Order, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]models.Order, error)
	List(ctx context.Context, offset, limit int) ([]models.Order, error)
	// UpdateStatus 以 from 作为前置条件，状态已被其他请求改掉时返回 false
	UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus, now time.Time) (bool, error)
	// UpdateStatusIfUnpaid 同 UpdateStatus，另外要求订单未支付
	UpdateStatusIfUnpaid(ctx context.Context, id string, from, to models.OrderStatus, now time.Time) (bool, error)
	// MarkPaid 只对未支付订单生效，已支付返回 false 且不覆盖支付时间
	MarkPaid(ctx context.Context, id string, method models.PaymentMethod, at time.Time) (bool, error)
}

type CartStore interface {
	Get(ctx context.Context, owner string) (models.Cart, error)
	AddItem(ctx context.Context, owner string, item models.CartItem, ttl time.Duration) error
	SetItem(ctx context.Context, owner string, item models.CartItem, ttl time.Duration) error
	RemoveItem(ctx context.Context, owner, productID, sizeID string) error
	// Merge 把 from 的商品数量累加进 to，然后删除 from
	Merge(ctx context.Context, from, to string) (models.Cart, error)
}

// Stores 订单流水线用到的三个存储
type Stores struct {
	Catalog  CatalogStore
	Vouchers VoucherStore
	Orders   OrderStore
}

// TxManager 支持多表事务的存储实现它；fn 里的 Stores 绑定在同一个事务上
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
}
