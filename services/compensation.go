package services

import (
	"context"
	"time"

	"github.com/ecodeclub/ekit/retry"
	"go.uber.org/zap"

	"shop-service/logging"
)

// RetryConfig 补偿动作的指数退避参数
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      int32
}

var defaultRetry = RetryConfig{
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     time.Second,
	MaxRetries:      3,
}

// compensation 已执行步骤的逆操作
type compensation struct {
	step      string
	productID string
	sizeID    string
	voucherID string
	amount    int
	fn        func(ctx context.Context) error
}

func (c compensation) fields(orderID string) []zap.Field {
	fields := []zap.Field{
		zap.String("order_id", orderID),
		zap.String("step", c.step),
	}
	if c.productID != "" {
		fields = append(fields, zap.String("product_id", c.productID), zap.String("size_id", c.sizeID))
	}
	if c.voucherID != "" {
		fields = append(fields, zap.String("voucher_id", c.voucherID))
	}
	return append(fields, zap.Int("amount", c.amount))
}

// runCompensations 逆序执行，每一步带重试；仍然失败的记 error 日志等人工对账，返回失败数量
func runCompensations(ctx context.Context, logger *zap.Logger, cfg RetryConfig, orderID string, steps []compensation) int {
	// 请求被取消也要把库存还回去
	ctx = context.WithoutCancel(ctx)
	log := logging.FromContext(ctx, logger)

	failed := 0
	for i := len(steps) - 1; i >= 0; i-- {
		c := steps[i]
		if err := withRetry(cfg, func() error { return c.fn(ctx) }); err != nil {
			failed++
			compensationFailures.WithLabelValues(c.step).Inc()
			log.Error("compensation failed, manual reconciliation required",
				append(c.fields(orderID), zap.Error(err))...)
		}
	}
	return failed
}

func withRetry(cfg RetryConfig, fn func() error) error {
	strategy, err := retry.NewExponentialBackoffRetryStrategy(cfg.InitialInterval, cfg.MaxInterval, cfg.MaxRetries)
	if err != nil {
		return err
	}
	for {
		err := fn()
		if err == nil {
			return nil
		}
		next, ok := strategy.Next()
		if !ok {
			return err
		}
		time.Sleep(next)
	}
}
