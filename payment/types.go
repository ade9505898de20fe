package payment

import (
	"net/url"
	"time"
)

//go:generate mockgen -source=./types.go -package=mocks -destination=./mocks/gateway.mock.go Gateway

// Gateway 第三方支付网关适配器
type Gateway interface {
	// Method 订单上记录的支付方式
	Method() string
	BuildRedirectURL(req Request) (string, error)
	// VerifyCallback 校验回调签名，签名不对时 Verified 为 false
	VerifyCallback(params url.Values) (Callback, error)
}

type Request struct {
	OrderID   string
	Amount    int64
	OrderInfo string
	ClientIP  string
	CreatedAt time.Time
}

type Callback struct {
	Verified      bool
	OrderID       string
	ResponseCode  string
	TransactionNo string
	BankCode      string
	// Amount 已经换算回订单金额单位
	Amount  int64
	Success bool
}
