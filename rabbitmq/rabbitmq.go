package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"shop-service/config"
	"shop-service/models"
	"shop-service/utils"
)

// publisher *amqp.Channel 满足
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel

	pub    publisher
	cfg    *config.Config
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

func NewRabbitMQ(cfg *config.Config, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	r := newRabbitMQ(ch, cfg, logger)
	r.Conn = conn
	r.Channel = ch
	return r, nil
}

func newRabbitMQ(pub publisher, cfg *config.Config, logger *zap.Logger) *RabbitMQ {
	return &RabbitMQ{
		pub:    pub,
		cfg:    cfg,
		cb:     utils.NewBreaker("rabbitmq-publisher", logger),
		logger: logger,
	}
}

func (r *RabbitMQ) SetupQueues() error {
	dlx := r.cfg.DeadLetterQueue + "_exchange"

	// 死信交换机和队列
	if err := r.Channel.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := r.Channel.QueueDeclare(
		r.cfg.DeadLetterQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-queue-type": "classic"},
	); err != nil {
		return err
	}
	if err := r.Channel.QueueBind(r.cfg.DeadLetterQueue, r.cfg.DeadLetterQueue, dlx, false, nil); err != nil {
		return err
	}

	if err := r.Channel.ExchangeDeclare(r.cfg.OrderExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	// 主订单队列，带优先级和死信
	if _, err := r.Channel.QueueDeclare(
		r.cfg.OrderQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-max-priority":            r.cfg.MaxPriority,
			"x-dead-letter-exchange":    dlx,
			"x-dead-letter-routing-key": r.cfg.DeadLetterQueue,
		},
	); err != nil {
		return err
	}
	if err := r.Channel.QueueBind(r.cfg.OrderQueue, "", r.cfg.OrderExchange, false, nil); err != nil {
		return err
	}

	// 延迟交换机需要 rabbitmq_delayed_message_exchange 插件
	if err := r.Channel.ExchangeDeclare(
		r.cfg.DelayExchange,
		"x-delayed-message",
		true,
		false,
		false,
		false,
		amqp.Table{"x-delayed-type": "direct"},
	); err != nil {
		r.logger.Warn("delayed exchange not supported, payment checks disabled", zap.Error(err))
		return nil
	}
	return r.Channel.QueueBind(r.cfg.OrderQueue, "", r.cfg.DelayExchange, false, nil)
}

func (r *RabbitMQ) PublishOrderEvent(ctx context.Context, evt models.OrderEvent, priority uint8) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return r.publish(ctx, r.cfg.OrderExchange, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		Type:         evt.Type,
		MessageId:    evt.OrderID + ":" + evt.Type,
		Body:         body,
		Priority:     priority,
	})
}

func (r *RabbitMQ) PublishDelayedEvent(ctx context.Context, evt models.OrderEvent, delay time.Duration) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return r.publish(ctx, r.cfg.DelayExchange, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		Type:         evt.Type,
		MessageId:    evt.OrderID + ":" + evt.Type,
		Body:         body,
		Headers: amqp.Table{
			"x-delay": delay.Milliseconds(),
		},
	})
}

// publish broker 不可用时熔断，快速失败，不拖慢下单
func (r *RabbitMQ) publish(ctx context.Context, exchange string, msg amqp.Publishing) error {
	_, err := utils.ExecuteWithBreaker(r.cb, func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return struct{}{}, r.pub.PublishWithContext(ctx, exchange, "", false, false, msg)
	})
	return err
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			r.logger.Warn("close rabbitmq channel", zap.Error(err))
		}
	}
	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil {
			r.logger.Warn("close rabbitmq connection", zap.Error(err))
		}
	}
}
