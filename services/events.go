package services

import (
	"context"
	"time"

	"shop-service/models"
)

//go:generate mockgen -source=./events.go -package=mocks -destination=./mocks/events.mock.go EventPublisher

const (
	EventCreated       = "created"
	EventStatusUpdated = "status_updated"
	EventPaymentCheck  = "payment_check"
)

// EventPublisher 订单事件出口，发送失败不影响主流程
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, evt models.OrderEvent, priority uint8) error
	PublishDelayedEvent(ctx context.Context, evt models.OrderEvent, delay time.Duration) error
}

type nopPublisher struct{}

func (nopPublisher) PublishOrderEvent(context.Context, models.OrderEvent, uint8) error {
	return nil
}

func (nopPublisher) PublishDelayedEvent(context.Context, models.OrderEvent, time.Duration) error {
	return nil
}

func newEvent(o models.Order, typ string, now time.Time) models.OrderEvent {
	return models.OrderEvent{
		OrderID:  o.ID,
		UserID:   o.UserID,
		Type:     typ,
		Status:   o.Status,
		Total:    o.FinalAmount,
		Occurred: now,
	}
}
