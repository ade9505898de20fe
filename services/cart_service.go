package services

import (
	"context"
	"time"

	"shop-service/errs"
	"shop-service/models"
	"shop-service/repository"
)

// guestCartTTL 游客购物车和 cartToken cookie 同样保留 30 天
const guestCartTTL = 30 * 24 * time.Hour

type CartService struct {
	carts   repository.CartStore
	catalog repository.CatalogStore
}

func NewCartService(carts repository.CartStore, catalog repository.CatalogStore) *CartService {
	return &CartService{carts: carts, catalog: catalog}
}

// CartOwner 登录用户用 userId，否则用 cartToken
type CartOwner struct {
	UserID     string
	GuestToken string
}

func (o CartOwner) key() (string, time.Duration, error) {
	if o.UserID != "" {
		return "user:" + o.UserID, 0, nil
	}
	if o.GuestToken != "" {
		return "guest:" + o.GuestToken, guestCartTTL, nil
	}
	return "", 0, errs.ErrValidation.WithMsg("cart owner is required")
}

func (s *CartService) Get(ctx context.Context, owner CartOwner) (models.Cart, error) {
	key, _, err := owner.key()
	if err != nil {
		return models.Cart{}, err
	}
	return s.carts.Get(ctx, key)
}

func (s *CartService) AddItem(ctx context.Context, owner CartOwner, item models.CartItem) (models.Cart, error) {
	key, ttl, err := owner.key()
	if err != nil {
		return models.Cart{}, err
	}
	if item.Quantity <= 0 {
		return models.Cart{}, errs.ErrValidation.WithMsg("quantity must be greater than 0")
	}
	if err := s.checkItem(ctx, item); err != nil {
		return models.Cart{}, err
	}
	if err := s.carts.AddItem(ctx, key, item, ttl); err != nil {
		return models.Cart{}, err
	}
	return s.carts.Get(ctx, key)
}

// UpdateItem 设置数量，0 表示移除
func (s *CartService) UpdateItem(ctx context.Context, owner CartOwner, item models.CartItem) (models.Cart, error) {
	key, ttl, err := owner.key()
	if err != nil {
		return models.Cart{}, err
	}
	switch {
	case item.Quantity < 0:
		return models.Cart{}, errs.ErrValidation.WithMsg("quantity must not be negative")
	case item.Quantity == 0:
		err = s.carts.RemoveItem(ctx, key, item.ProductID, item.SizeID)
	default:
		if err = s.checkItem(ctx, item); err != nil {
			return models.Cart{}, err
		}
		err = s.carts.SetItem(ctx, key, item, ttl)
	}
	if err != nil {
		return models.Cart{}, err
	}
	return s.carts.Get(ctx, key)
}

func (s *CartService) RemoveItem(ctx context.Context, owner CartOwner, productID, sizeID string) (models.Cart, error) {
	key, _, err := owner.key()
	if err != nil {
		return models.Cart{}, err
	}
	if err := s.carts.RemoveItem(ctx, key, productID, sizeID); err != nil {
		return models.Cart{}, err
	}
	return s.carts.Get(ctx, key)
}

// Merge 登录后把游客购物车合并进用户购物车，同一商品同一尺码数量相加
func (s *CartService) Merge(ctx context.Context, guestToken, userID string) (models.Cart, error) {
	if guestToken == "" || userID == "" {
		return models.Cart{}, errs.ErrValidation.WithMsg("guest token and user id are required")
	}
	from, _, _ := CartOwner{GuestToken: guestToken}.key()
	to, _, _ := CartOwner{UserID: userID}.key()
	return s.carts.Merge(ctx, from, to)
}

func (s *CartService) checkItem(ctx context.Context, item models.CartItem) error {
	if item.ProductID == "" || item.SizeID == "" {
		return errs.ErrValidation.WithMsg("productId and sizeId are required")
	}
	ps, err := s.catalog.FindProductsByIDs(ctx, []string{item.ProductID})
	if err != nil {
		return err
	}
	if len(ps) == 0 {
		return errs.ErrProductNotFound
	}
	if _, ok := ps[0].Size(item.SizeID); !ok {
		return errs.ErrValidation.WithMsg("size is not available for this product")
	}
	return nil
}
