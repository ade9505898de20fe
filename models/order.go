package models

import (
	"time"

	"shop-service/errs"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusShipping  OrderStatus = "shipping"
	StatusSuccess   OrderStatus = "success"
	StatusCancelled OrderStatus = "cancelled"
)

// 订单状态机：pending -> shipping/cancelled，shipping -> success/cancelled
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:  {StatusShipping, StatusCancelled},
	StatusShipping: {StatusSuccess, StatusCancelled},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusShipping, StatusSuccess, StatusCancelled:
		return st, nil
	}
	return "", errs.ErrInvalidStatus
}

// IsTerminal success 和 cancelled 之后不允许任何流转
func (s OrderStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "cod"
	PaymentVNPay  PaymentMethod = "vnpay"
	PaymentPaypal PaymentMethod = "paypal"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch pm := PaymentMethod(s); pm {
	case PaymentCOD, PaymentVNPay, PaymentPaypal:
		return pm, nil
	}
	return "", errs.ErrInvalidPayment
}

// IsOnline 需要在线支付回调确认的支付方式
func (p PaymentMethod) IsOnline() bool {
	return p != PaymentCOD
}

// Order 金额单位为 VND，没有小数
type Order struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	ShippingAddress string        `json:"shippingAddress"`
	Items           []OrderItem   `json:"items"`
	TotalAmount     int64         `json:"totalAmount"`
	DiscountAmount  int64         `json:"discountAmount"`
	FinalAmount     int64         `json:"finalAmount"`
	VoucherID       string        `json:"-"`
	VoucherCode     string        `json:"voucherCode,omitempty"`
	Status          OrderStatus   `json:"status"`
	IsPaid          bool          `json:"isPaid"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	PaymentTime     *time.Time    `json:"paymentTime,omitempty"`
	Note            string        `json:"note,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// OrderItem 价格是下单时的快照，之后不再从商品读取
type OrderItem struct {
	ProductID string `json:"productId"`
	SizeID    string `json:"sizeId"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

func (i OrderItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// Clone 深拷贝，内存仓储返回副本用
func (o Order) Clone() Order {
	cp := o
	cp.Items = append([]OrderItem(nil), o.Items...)
	if o.PaymentTime != nil {
		t := *o.PaymentTime
		cp.PaymentTime = &t
	}
	return cp
}

// OrderLine 下单请求中的一行，价格永远以服务端为准
type OrderLine struct {
	ProductID string
	SizeID    string
	Quantity  int
	Color     string
}

// PlaceOrderCommand 已经过边界校验的下单命令
type PlaceOrderCommand struct {
	UserID          string
	ShippingAddress string
	Items           []OrderLine
	VoucherCode     string
	PaymentMethod   PaymentMethod
	Note            string
}

func (c PlaceOrderCommand) Validate() error {
	if c.UserID == "" {
		return errs.ErrValidation.WithMsg("user id is required")
	}
	if c.ShippingAddress == "" {
		return errs.ErrValidation.WithMsg("shipping address is required")
	}
	if len(c.Items) == 0 {
		return errs.ErrEmptyOrder
	}
	for _, it := range c.Items {
		if it.ProductID == "" || it.SizeID == "" {
			return errs.ErrValidation.WithMsg("productId and sizeId are required for every item")
		}
		if it.Quantity <= 0 {
			return errs.ErrValidation.WithMsg("quantity must be greater than 0")
		}
	}
	if _, err := ParsePaymentMethod(string(c.PaymentMethod)); err != nil {
		return err
	}
	return nil
}

type OrderEvent struct {
	OrderID  string      `json:"orderId"`
	UserID   string      `json:"userId"`
	Type     string      `json:"type"`
	Status   OrderStatus `json:"status"`
	Total    int64       `json:"total"`
	Occurred time.Time   `json:"occurred"`
}
