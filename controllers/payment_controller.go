package controllers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shop-service/errs"
	"shop-service/logging"
	"shop-service/middlewares"
	"shop-service/services"
)

// VNPay IPN 应答码
const (
	rspConfirmed      = "00"
	rspOrderNotFound  = "01"
	rspAlreadyPaid    = "02"
	rspInvalidAmount  = "04"
	rspInvalidSigning = "97"
	rspUnknown        = "99"
)

type createPaymentReq struct {
	OrderID string `json:"orderId" binding:"required"`
	Amount  int64  `json:"amount" binding:"required,gt=0"`
}

type PaymentController struct {
	payments *services.PaymentService
	// resultURL 前端支付结果页
	resultURL string
	logger    *zap.Logger
}

func NewPaymentController(payments *services.PaymentService, resultURL string, logger *zap.Logger) *PaymentController {
	return &PaymentController{payments: payments, resultURL: resultURL, logger: logger}
}

func (ctl *PaymentController) CreateVNPayURL(c *gin.Context) {
	var req createPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, ctl.logger, bindError(err))
		return
	}
	redirect, err := ctl.payments.BuildPaymentURL(c.Request.Context(), currentUser(c), req.OrderID, req.Amount, c.ClientIP())
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paymentUrl": redirect})
}

// VNPayReturn 浏览器从网关跳回，核对后重定向到前端结果页
func (ctl *PaymentController) VNPayReturn(c *gin.Context) {
	res, err := ctl.payments.Reconcile(c.Request.Context(), c.Request.URL.Query())
	middlewares.RecordOrderOperation("payment_return", err)

	orderID, code := res.OrderID, res.ResponseCode
	if err != nil {
		orderID = c.Query("vnp_TxnRef")
		code = rspUnknown
		if errors.Is(err, errs.ErrSignatureInvalid) {
			code = rspInvalidSigning
		}
		logging.FromContext(c.Request.Context(), ctl.logger).Warn("payment return rejected",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
	c.Redirect(http.StatusFound, ctl.resultLocation(orderID, code))
}

// VNPayIPN 网关服务端通知，按 VNPay 约定始终返回 200 和 RspCode
func (ctl *PaymentController) VNPayIPN(c *gin.Context) {
	res, err := ctl.payments.Reconcile(c.Request.Context(), c.Request.URL.Query())
	middlewares.RecordOrderOperation("payment_ipn", err)

	var code, msg string
	switch {
	case errors.Is(err, errs.ErrSignatureInvalid):
		code, msg = rspInvalidSigning, "Invalid signature"
	case errors.Is(err, errs.ErrOrderNotFound):
		code, msg = rspOrderNotFound, "Order not found"
	case errors.Is(err, errs.ErrAmountMismatch):
		code, msg = rspInvalidAmount, "Invalid amount"
	case err != nil:
		logging.FromContext(c.Request.Context(), ctl.logger).Error("payment ipn failed", zap.Error(err))
		code, msg = rspUnknown, "Unknown error"
	case res.AlreadyPaid:
		code, msg = rspAlreadyPaid, "Order already confirmed"
	default:
		code, msg = rspConfirmed, "Confirm Success"
	}
	c.JSON(http.StatusOK, gin.H{"RspCode": code, "Message": msg})
}

func (ctl *PaymentController) resultLocation(orderID, code string) string {
	u, err := url.Parse(ctl.resultURL)
	if err != nil {
		return ctl.resultURL
	}
	q := u.Query()
	q.Set("orderId", orderID)
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}
