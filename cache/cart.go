package cache

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"shop-service/errs"
	"shop-service/models"
	"shop-service/repository"
)

const cartPrefix = "cart:"

// RedisCartStore 每个购物车一个 hash，field 为 productId|sizeId，值为数量
type RedisCartStore struct {
	client redis.UniversalClient
}

func NewRedisCartStore(client redis.UniversalClient) *RedisCartStore {
	return &RedisCartStore{client: client}
}

var _ repository.CartStore = (*RedisCartStore)(nil)

func (s *RedisCartStore) Get(ctx context.Context, owner string) (models.Cart, error) {
	fields, err := s.client.HGetAll(ctx, cartPrefix+owner).Result()
	if err != nil {
		return models.Cart{}, errs.Storage(err)
	}
	return toCart(owner, fields), nil
}

func (s *RedisCartStore) AddItem(ctx context.Context, owner string, item models.CartItem, ttl time.Duration) error {
	key := cartPrefix + owner
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, field(item.ProductID, item.SizeID), int64(item.Quantity))
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return errs.Storage(err)
}

func (s *RedisCartStore) SetItem(ctx context.Context, owner string, item models.CartItem, ttl time.Duration) error {
	key := cartPrefix + owner
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field(item.ProductID, item.SizeID), item.Quantity)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return errs.Storage(err)
}

func (s *RedisCartStore) RemoveItem(ctx context.Context, owner, productID, sizeID string) error {
	return errs.Storage(s.client.HDel(ctx, cartPrefix+owner, field(productID, sizeID)).Err())
}

// Merge WATCH 游客购物车，合并期间它被修改则放弃本次合并
func (s *RedisCartStore) Merge(ctx context.Context, from, to string) (models.Cart, error) {
	fromKey, toKey := cartPrefix+from, cartPrefix+to
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		items, err := tx.HGetAll(ctx, fromKey).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for f, q := range items {
				n, err := strconv.ParseInt(q, 10, 64)
				if err != nil || n <= 0 {
					continue
				}
				pipe.HIncrBy(ctx, toKey, f, n)
			}
			pipe.Del(ctx, fromKey)
			return nil
		})
		return err
	}, fromKey)
	if errors.Is(err, redis.TxFailedErr) {
		return models.Cart{}, errs.ErrCartConflict
	}
	if err != nil {
		return models.Cart{}, errs.Storage(err)
	}
	return s.Get(ctx, to)
}

func field(productID, sizeID string) string {
	return productID + "|" + sizeID
}

func toCart(owner string, fields map[string]string) models.Cart {
	cart := models.Cart{Owner: owner, Items: make([]models.CartItem, 0, len(fields))}
	for f, q := range fields {
		productID, sizeID, ok := strings.Cut(f, "|")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			continue
		}
		cart.Items = append(cart.Items, models.CartItem{ProductID: productID, SizeID: sizeID, Quantity: n})
	}
	sort.Slice(cart.Items, func(i, j int) bool {
		if cart.Items[i].ProductID != cart.Items[j].ProductID {
			return cart.Items[i].ProductID < cart.Items[j].ProductID
		}
		return cart.Items[i].SizeID < cart.Items[j].SizeID
	})
	return cart
}
