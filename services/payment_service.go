package services

import (
	"context"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"shop-service/errs"
	"shop-service/logging"
	"shop-service/models"
	"shop-service/payment"
	"shop-service/repository"
)

// PaymentResult 回调处理结果，用于前端跳转和给网关应答
type PaymentResult struct {
	OrderID      string
	ResponseCode string
	Success      bool
	// AlreadyPaid 重复回调，订单之前已经标记为已支付
	AlreadyPaid bool
}

type PaymentService struct {
	orders  repository.OrderStore
	gateway payment.Gateway
	logger  *zap.Logger
	now     func() time.Time
}

func NewPaymentService(orders repository.OrderStore, gateway payment.Gateway, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		orders:  orders,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
	}
}

// BuildPaymentURL 只为本人未支付、未取消的订单生成支付链接，金额以订单为准
func (s *PaymentService) BuildPaymentURL(ctx context.Context, userID, orderID string, amount int64, clientIP string) (redirect string, err error) {
	ctx, span := tracer.Start(ctx, "PaymentService.BuildPaymentURL", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer func() { endSpan(span, err) }()

	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.UserID != userID {
		return "", errs.ErrOrderNotFound
	}
	if o.IsPaid {
		return "", errs.ErrOrderAlreadyPaid
	}
	if o.Status.IsTerminal() {
		return "", errs.ErrOrderNotPayable
	}
	if amount != o.FinalAmount {
		return "", errs.ErrAmountMismatch
	}

	redirect, err = s.gateway.BuildRedirectURL(payment.Request{
		OrderID:   o.ID,
		Amount:    o.FinalAmount,
		OrderInfo: "Thanh toan don hang " + o.ID,
		ClientIP:  clientIP,
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", errs.ErrInternal.Wrap(err)
	}
	return redirect, nil
}

// Reconcile 处理网关回调：验签、核对金额、幂等地标记已支付。不改变订单状态。
func (s *PaymentService) Reconcile(ctx context.Context, params url.Values) (res PaymentResult, err error) {
	ctx, span := tracer.Start(ctx, "PaymentService.Reconcile")
	defer func() { endSpan(span, err) }()

	log := logging.FromContext(ctx, s.logger)
	cb, err := s.gateway.VerifyCallback(params)
	if err != nil {
		return PaymentResult{}, errs.ErrValidation.WithMsg(err.Error())
	}
	if !cb.Verified {
		log.Warn("payment callback signature mismatch", zap.String("order_id", cb.OrderID))
		return PaymentResult{}, errs.ErrSignatureInvalid
	}
	span.SetAttributes(
		attribute.String("order.id", cb.OrderID),
		attribute.String("payment.response_code", cb.ResponseCode),
	)

	res = PaymentResult{
		OrderID:      cb.OrderID,
		ResponseCode: cb.ResponseCode,
		Success:      cb.Success,
	}
	if !cb.Success {
		log.Info("payment failed at gateway",
			zap.String("order_id", cb.OrderID),
			zap.String("response_code", cb.ResponseCode))
		return res, nil
	}

	o, err := s.orders.FindByID(ctx, cb.OrderID)
	if err != nil {
		return PaymentResult{}, err
	}
	if cb.Amount != o.FinalAmount {
		log.Error("payment amount mismatch",
			zap.String("order_id", o.ID),
			zap.Int64("paid", cb.Amount),
			zap.Int64("expected", o.FinalAmount))
		return PaymentResult{}, errs.ErrAmountMismatch
	}

	changed, err := s.orders.MarkPaid(ctx, o.ID, models.PaymentMethod(s.gateway.Method()), s.now())
	if err != nil {
		return PaymentResult{}, err
	}
	res.AlreadyPaid = !changed
	if changed {
		log.Info("order paid",
			zap.String("order_id", o.ID),
			zap.String("transaction_no", cb.TransactionNo),
			zap.String("bank_code", cb.BankCode))
		s.checkCancelledAfterPayment(ctx, log, o, cb)
	}
	return res, nil
}

// checkCancelledAfterPayment 超时取消可能在读订单和标记支付之间完成，以标记之后的状态为准。
// 钱已经收到但订单已取消，需要人工退款。
func (s *PaymentService) checkCancelledAfterPayment(ctx context.Context, log *zap.Logger, o models.Order, cb payment.Callback) {
	cur, err := s.orders.FindByID(ctx, o.ID)
	if err != nil {
		log.Warn("reload order after payment failed", zap.String("order_id", o.ID), zap.Error(err))
		cur = o
	}
	if cur.Status != models.StatusCancelled {
		return
	}
	log.Error("payment received for cancelled order",
		zap.String("order_id", o.ID),
		zap.String("transaction_no", cb.TransactionNo),
		zap.Int64("amount", cb.Amount))
}
