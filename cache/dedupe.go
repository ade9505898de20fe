package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"shop-service/errs"
)

// RequestDeduper 基于 SETNX 的请求去重，客户端用 Idempotency-Key 安全重试
type RequestDeduper struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRequestDeduper(client redis.UniversalClient, ttl time.Duration) *RequestDeduper {
	return &RequestDeduper{client: client, ttl: ttl}
}

// Claim 第一次出现返回 true
func (d *RequestDeduper) Claim(ctx context.Context, scope, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(scope, key), 1, d.ttl).Result()
	if err != nil {
		return false, errs.Storage(err)
	}
	return ok, nil
}

// Release 请求失败后释放，允许客户端用同一个 key 重试
func (d *RequestDeduper) Release(ctx context.Context, scope, key string) error {
	return errs.Storage(d.client.Del(ctx, d.key(scope, key)).Err())
}

func (d *RequestDeduper) key(scope, key string) string {
	return "idempotency:" + scope + ":" + key
}
