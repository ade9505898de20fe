package consumers

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"shop-service/config"
	"shop-service/errs"
	"shop-service/models"
)

// OrderExpirer 超时未支付自动取消
type OrderExpirer interface {
	ExpireUnpaid(ctx context.Context, orderID string) (bool, error)
}

type OrderConsumer struct {
	orders OrderExpirer
	cfg    *config.Config
	logger *zap.Logger
}

func NewOrderConsumer(orders OrderExpirer, cfg *config.Config, logger *zap.Logger) *OrderConsumer {
	return &OrderConsumer{orders: orders, cfg: cfg, logger: logger}
}

// Start 消费主队列和死信队列，ctx 结束或连接断开时返回
func (c *OrderConsumer) Start(ctx context.Context, ch *amqp.Channel) error {
	msgs, err := ch.Consume(
		c.cfg.OrderQueue,
		"shop-service", // consumer tag
		false,          // auto-ack
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,
	)
	if err != nil {
		return err
	}
	dlqMsgs, err := ch.Consume(c.cfg.DeadLetterQueue, "shop-service-dlq", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("consumers: order queue closed")
			}
			c.processOrderMessage(ctx, msg)
		case msg, ok := <-dlqMsgs:
			if !ok {
				return errors.New("consumers: dead letter queue closed")
			}
			c.processDeadLetterMessage(msg)
		}
	}
}

func (c *OrderConsumer) processOrderMessage(ctx context.Context, msg amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("recovered from panic in message processing", zap.Any("panic", r))
			_ = msg.Nack(false, false)
		}
	}()

	var evt models.OrderEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil || evt.OrderID == "" {
		c.logger.Warn("invalid order message", zap.ByteString("body", msg.Body))
		// 格式错误直接进死信队列
		_ = msg.Nack(false, false)
		return
	}
	log := c.logger.With(zap.String("order_id", evt.OrderID), zap.String("event", evt.Type))

	if err := c.handle(ctx, log, evt); err != nil {
		// 存储错误重试一次，仍失败进死信队列
		requeue := errs.KindOf(err) == errs.KindStorage && !msg.Redelivered
		log.Error("handle order event failed", zap.Bool("requeue", requeue), zap.Error(err))
		_ = msg.Nack(false, requeue)
		return
	}
	_ = msg.Ack(false)
}

func (c *OrderConsumer) handle(ctx context.Context, log *zap.Logger, evt models.OrderEvent) error {
	switch evt.Type {
	case "payment_check":
		cancelled, err := c.orders.ExpireUnpaid(ctx, evt.OrderID)
		if errors.Is(err, errs.ErrOrderNotFound) {
			log.Warn("payment check for unknown order")
			return nil
		}
		if err != nil {
			return err
		}
		if cancelled {
			log.Info("auto-cancelled order due to non-payment")
		}
	case "created", "status_updated":
		// 通知类事件，只记录
		log.Info("order event received", zap.String("status", string(evt.Status)))
	default:
		log.Warn("unknown event type")
	}
	return nil
}

func (c *OrderConsumer) processDeadLetterMessage(msg amqp.Delivery) {
	c.logger.Error("dead letter received",
		zap.String("message_id", msg.MessageId),
		zap.ByteString("body", msg.Body))
	_ = msg.Ack(false)
}
