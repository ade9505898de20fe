package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"shop-service/errs"
	"shop-service/logging"
	"shop-service/models"
	"shop-service/repository"
)

const (
	priorityNormal uint8 = 1
	priorityHigh   uint8 = 5
)

var tracer = otel.Tracer("shop-service/services")

// errSkipped 条件不满足时跳过状态变更，不算错误
var errSkipped = errors.New("services: status change skipped")

type OrderService struct {
	stores            repository.Stores
	tx                repository.TxManager
	publisher         EventPublisher
	logger            *zap.Logger
	now               func() time.Time
	newID             func() string
	retry             RetryConfig
	paymentCheckDelay time.Duration
}

type OrderOption func(s *OrderService)

// WithTxManager 存储支持事务时，扣库存、扣优惠券、写订单在一个事务里完成
func WithTxManager(tx repository.TxManager) OrderOption {
	return func(s *OrderService) {
		s.tx = tx
	}
}

func WithPublisher(p EventPublisher) OrderOption {
	return func(s *OrderService) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithClock(now func() time.Time) OrderOption {
	return func(s *OrderService) {
		s.now = now
	}
}

func WithRetry(cfg RetryConfig) OrderOption {
	return func(s *OrderService) {
		s.retry = cfg
	}
}

// WithPaymentCheckDelay 在线支付订单超过这个时间未支付会被自动取消
func WithPaymentCheckDelay(d time.Duration) OrderOption {
	return func(s *OrderService) {
		s.paymentCheckDelay = d
	}
}

func NewOrderService(stores repository.Stores, logger *zap.Logger, opts ...OrderOption) *OrderService {
	s := &OrderService{
		stores:            stores,
		publisher:         nopPublisher{},
		logger:            logger,
		now:               time.Now,
		newID:             func() string { return uuid.NewString() },
		retry:             defaultRetry,
		paymentCheckDelay: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder 校验 -> 解析库存和价格 -> 优惠券 -> 扣减库存/优惠券并落库。
// 任何一步失败都不会留下订单，也不会留下已扣减的库存。
func (s *OrderService) PlaceOrder(ctx context.Context, cmd models.PlaceOrderCommand) (order models.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.PlaceOrder", trace.WithAttributes(
		attribute.String("user.id", cmd.UserID),
		attribute.Int("order.lines", len(cmd.Items)),
	))
	defer func() { endSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return models.Order{}, err
	}

	order, err = s.draft(ctx, cmd)
	if err != nil {
		return models.Order{}, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	path := "saga"
	if s.tx != nil {
		path = "tx"
		err = s.tx.InTx(ctx, func(ctx context.Context, tx repository.Stores) error {
			_, err := s.reserve(ctx, tx, order)
			return err
		})
	} else {
		var undo []compensation
		undo, err = s.reserve(ctx, s.stores, order)
		if err != nil && len(undo) > 0 {
			runCompensations(ctx, s.logger, s.retry, order.ID, undo)
		}
	}
	if err != nil {
		placementOutcomes.WithLabelValues(path, outcome(err)).Inc()
		return models.Order{}, err
	}
	placementOutcomes.WithLabelValues(path, "ok").Inc()

	logging.FromContext(ctx, s.logger).Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int64("final_amount", order.FinalAmount),
		zap.String("voucher_code", order.VoucherCode),
		zap.String("path", path))

	s.publish(ctx, order, EventCreated, priorityNormal)
	if order.PaymentMethod.IsOnline() {
		s.schedulePaymentCheck(ctx, order)
	}
	return order, nil
}

// draft 只读阶段：按服务端价格生成订单快照，校验库存和优惠券，不做任何修改
func (s *OrderService) draft(ctx context.Context, cmd models.PlaceOrderCommand) (models.Order, error) {
	ids := make([]string, 0, len(cmd.Items))
	seen := make(map[string]struct{}, len(cmd.Items))
	for _, line := range cmd.Items {
		if _, ok := seen[line.ProductID]; !ok {
			seen[line.ProductID] = struct{}{}
			ids = append(ids, line.ProductID)
		}
	}
	products, err := s.stores.Catalog.FindProductsByIDs(ctx, ids)
	if err != nil {
		return models.Order{}, err
	}
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	type stockKey struct{ productID, sizeID string }
	need := make(map[stockKey]int, len(cmd.Items))

	var total int64
	items := make([]models.OrderItem, 0, len(cmd.Items))
	for _, line := range cmd.Items {
		p, ok := byID[line.ProductID]
		if !ok {
			return models.Order{}, errs.ErrProductNotFound.WithMsg(fmt.Sprintf("product %s not found", line.ProductID))
		}
		size, ok := p.Size(line.SizeID)
		if !ok {
			return models.Order{}, errs.ErrOutOfStock.WithMsg(fmt.Sprintf("size %s of %s is not available", line.SizeID, p.Name))
		}
		key := stockKey{line.ProductID, line.SizeID}
		need[key] += line.Quantity
		if size.Quantity < need[key] {
			return models.Order{}, errs.ErrOutOfStock.WithMsg(fmt.Sprintf("%s (size %s) has only %d left", p.Name, size.Name, size.Quantity))
		}
		item := models.OrderItem{
			ProductID: p.ID,
			SizeID:    size.SizeID,
			Name:      p.Name,
			Image:     p.FirstImage(),
			Color:     line.Color,
			Size:      size.Name,
			Quantity:  line.Quantity,
			Price:     p.Price,
		}
		total += item.Subtotal()
		items = append(items, item)
	}

	now := s.now()
	order := models.Order{
		ID:              s.newID(),
		UserID:          cmd.UserID,
		ShippingAddress: cmd.ShippingAddress,
		Items:           items,
		TotalAmount:     total,
		FinalAmount:     total,
		Status:          models.StatusPending,
		PaymentMethod:   cmd.PaymentMethod,
		Note:            cmd.Note,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if code := models.CanonicalCode(cmd.VoucherCode); code != "" {
		v, err := s.stores.Vouchers.FindActiveByCode(ctx, code)
		if err != nil {
			return models.Order{}, err
		}
		if v == nil {
			return models.Order{}, errs.ErrVoucherNotFound
		}
		discount, err := v.Evaluate(total, now)
		if err != nil {
			return models.Order{}, err
		}
		order.VoucherID = v.ID
		order.VoucherCode = v.Code
		order.DiscountAmount = discount
		order.FinalAmount = total - discount
	}
	return order, nil
}

// reserve 写阶段。每一步成功后登记逆操作；事务路径下直接丢弃，补偿路径下失败时逆序执行。
func (s *OrderService) reserve(ctx context.Context, st repository.Stores, order models.Order) ([]compensation, error) {
	undo := make([]compensation, 0, len(order.Items)*2+1)
	for _, it := range lockOrder(order.Items) {
		ok, err := st.Catalog.ConditionalDecrementStock(ctx, it.ProductID, it.SizeID, it.Quantity)
		if err != nil {
			return undo, err
		}
		if !ok {
			return undo, errs.ErrOutOfStock.WithMsg(fmt.Sprintf("%s (size %s) is out of stock", it.Name, it.Size))
		}
		undo = append(undo, compensation{
			step:      "restore_stock",
			productID: it.ProductID,
			sizeID:    it.SizeID,
			amount:    it.Quantity,
			fn: func(ctx context.Context) error {
				return st.Catalog.IncrementStock(ctx, it.ProductID, it.SizeID, it.Quantity)
			},
		})

		if err := st.Catalog.AccrueSold(ctx, it.ProductID, it.Quantity); err != nil {
			return undo, err
		}
		undo = append(undo, compensation{
			step:      "reduce_sold",
			productID: it.ProductID,
			sizeID:    it.SizeID,
			amount:    it.Quantity,
			fn: func(ctx context.Context) error {
				return st.Catalog.ReduceSold(ctx, it.ProductID, it.Quantity)
			},
		})
	}

	if order.VoucherID != "" {
		ok, err := st.Vouchers.ConditionalDecrementUse(ctx, order.VoucherID)
		if err != nil {
			return undo, err
		}
		if !ok {
			return undo, errs.ErrVoucherExhausted
		}
		undo = append(undo, compensation{
			step:      "restore_voucher",
			voucherID: order.VoucherID,
			amount:    1,
			fn: func(ctx context.Context) error {
				return st.Vouchers.RestoreUse(ctx, order.VoucherID)
			},
		})
	}

	if err := st.Orders.Insert(ctx, order); err != nil {
		return undo, err
	}
	return nil, nil
}

// UpdateStatus 管理端修改订单状态
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus) (order models.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.next_status", string(next)),
	))
	defer func() { endSpan(span, err) }()

	if _, err := models.ParseOrderStatus(string(next)); err != nil {
		return models.Order{}, err
	}
	return s.changeStatus(ctx, statusChange{orderID: orderID, next: next})
}

// CancelByOwner 用户只能取消自己的待处理订单
func (s *OrderService) CancelByOwner(ctx context.Context, userID, orderID string) (order models.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.CancelByOwner", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer func() { endSpan(span, err) }()

	return s.changeStatus(ctx, statusChange{orderID: orderID, next: models.StatusCancelled, guard: func(o models.Order) error {
		if o.UserID != userID {
			return errs.ErrOrderNotFound
		}
		if o.Status != models.StatusPending {
			return errs.ErrInvalidTransition.WithMsg("only pending orders can be cancelled")
		}
		return nil
	}})
}

// ExpireUnpaid 在线支付订单超时未付款则取消并归还库存，返回是否真的取消了
func (s *OrderService) ExpireUnpaid(ctx context.Context, orderID string) (cancelled bool, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.ExpireUnpaid", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer func() { endSpan(span, err) }()

	// 支付回调可能在读订单之后才到，CAS 同时要求仍未支付
	_, err = s.changeStatus(ctx, statusChange{
		orderID:    orderID,
		next:       models.StatusCancelled,
		unpaidOnly: true,
		guard: func(o models.Order) error {
			if o.Status != models.StatusPending || o.IsPaid || !o.PaymentMethod.IsOnline() {
				return errSkipped
			}
			return nil
		},
	})
	if errors.Is(err, errSkipped) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logging.FromContext(ctx, s.logger).Info("unpaid order auto-cancelled", zap.String("order_id", orderID))
	return true, nil
}

type statusChange struct {
	orderID string
	next    models.OrderStatus
	// guard 在状态机校验之前执行
	guard func(o models.Order) error
	// unpaidOnly 写状态时要求订单仍未支付，否则跳过
	unpaidOnly bool
}

func (s *OrderService) changeStatus(ctx context.Context, req statusChange) (models.Order, error) {
	orderID, next := req.orderID, req.next
	var err error
	if s.tx != nil {
		err = s.tx.InTx(ctx, func(ctx context.Context, tx repository.Stores) error {
			_, err := s.transition(ctx, tx, req, true)
			return err
		})
	} else {
		_, err = s.transition(ctx, s.stores, req, false)
	}
	if err != nil {
		return models.Order{}, err
	}
	order, err := s.stores.Orders.FindByID(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}

	logging.FromContext(ctx, s.logger).Info("order status changed",
		zap.String("order_id", orderID),
		zap.String("status", string(next)))
	priority := priorityNormal
	if next == models.StatusCancelled {
		priority = priorityHigh
	}
	s.publish(ctx, order, EventStatusUpdated, priority)
	return order, nil
}

// transition 状态机校验 + CAS 写状态 + 副作用。
// atomic 为 true 时运行在事务里，任何失败直接返回让事务回滚。
func (s *OrderService) transition(ctx context.Context, st repository.Stores, req statusChange, atomic bool) (models.Order, error) {
	next := req.next
	o, err := st.Orders.FindByID(ctx, req.orderID)
	if err != nil {
		return models.Order{}, err
	}
	if req.guard != nil {
		if err := req.guard(o); err != nil {
			return models.Order{}, err
		}
	}
	if o.Status.IsTerminal() || !o.Status.CanTransitionTo(next) {
		return models.Order{}, errs.ErrInvalidTransition.WithMsg(
			fmt.Sprintf("cannot change order from %s to %s", o.Status, next))
	}

	now := s.now()
	var ok bool
	if req.unpaidOnly {
		ok, err = st.Orders.UpdateStatusIfUnpaid(ctx, o.ID, o.Status, next, now)
	} else {
		ok, err = st.Orders.UpdateStatus(ctx, o.ID, o.Status, next, now)
	}
	if err != nil {
		return models.Order{}, err
	}
	if !ok {
		if req.unpaidOnly {
			// 状态被改过或者刚刚支付成功
			return models.Order{}, errSkipped
		}
		// 并发请求已经改过状态
		return models.Order{}, errs.ErrInvalidTransition.WithMsg("order status was changed concurrently")
	}
	prev := o.Status
	o.Status = next
	o.UpdatedAt = now

	switch next {
	case models.StatusCancelled:
		if err := s.restock(ctx, st, o, atomic); err != nil {
			return o, err
		}
		logging.FromContext(ctx, s.logger).Info("order cancelled, inventory restored",
			zap.String("order_id", o.ID),
			zap.String("from", string(prev)))
	case models.StatusSuccess:
		// 销量在下单时已经累加；货到付款在完成时记为已支付，已有支付时间不覆盖
		if o.PaymentMethod == models.PaymentCOD {
			if err := s.markCODPaid(ctx, st, o, now, atomic); err != nil {
				return o, err
			}
		}
	}
	return o, nil
}

// markCODPaid 事务路径失败直接回滚；非事务路径状态已经写成 success，
// 重试后仍失败只能记日志等人工对账，重新提交会被状态机拒绝
func (s *OrderService) markCODPaid(ctx context.Context, st repository.Stores, o models.Order, now time.Time, atomic bool) error {
	markPaid := func() error {
		_, err := st.Orders.MarkPaid(ctx, o.ID, models.PaymentCOD, now)
		return err
	}
	if atomic {
		return markPaid()
	}
	if err := withRetry(s.retry, markPaid); err != nil {
		compensationFailures.WithLabelValues("mark_paid").Inc()
		logging.FromContext(ctx, s.logger).Error("order completed but payment not recorded, manual reconciliation required",
			zap.String("order_id", o.ID),
			zap.String("step", "mark_paid"),
			zap.String("status", string(o.Status)),
			zap.String("payment_method", string(o.PaymentMethod)),
			zap.Int64("amount", o.FinalAmount),
			zap.Error(err))
		return err
	}
	return nil
}

// restock 归还库存、减销量、归还优惠券次数
func (s *OrderService) restock(ctx context.Context, st repository.Stores, o models.Order, atomic bool) error {
	steps := make([]compensation, 0, len(o.Items)*2+1)
	for _, it := range lockOrder(o.Items) {
		steps = append(steps,
			compensation{
				step:      "restore_stock",
				productID: it.ProductID,
				sizeID:    it.SizeID,
				amount:    it.Quantity,
				fn: func(ctx context.Context) error {
					return st.Catalog.IncrementStock(ctx, it.ProductID, it.SizeID, it.Quantity)
				},
			},
			compensation{
				step:      "reduce_sold",
				productID: it.ProductID,
				sizeID:    it.SizeID,
				amount:    it.Quantity,
				fn: func(ctx context.Context) error {
					return st.Catalog.ReduceSold(ctx, it.ProductID, it.Quantity)
				},
			})
	}
	if o.VoucherID != "" {
		steps = append(steps, compensation{
			step:      "restore_voucher",
			voucherID: o.VoucherID,
			amount:    1,
			fn: func(ctx context.Context) error {
				return st.Vouchers.RestoreUse(ctx, o.VoucherID)
			},
		})
	}

	if atomic {
		for _, c := range steps {
			if err := c.fn(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	if failed := runCompensations(ctx, s.logger, s.retry, o.ID, steps); failed > 0 {
		return errs.ErrStorage.WithMsg(fmt.Sprintf("order cancelled but %d inventory restore steps failed", failed))
	}
	return nil
}

func (s *OrderService) Get(ctx context.Context, orderID string) (models.Order, error) {
	return s.stores.Orders.FindByID(ctx, orderID)
}

// GetForUser 不是本人的订单按不存在处理
func (s *OrderService) GetForUser(ctx context.Context, userID, orderID string) (models.Order, error) {
	o, err := s.stores.Orders.FindByID(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if o.UserID != userID {
		return models.Order{}, errs.ErrOrderNotFound
	}
	return o, nil
}

func (s *OrderService) ListByUser(ctx context.Context, userID string, page, size int) ([]models.Order, error) {
	offset, limit := pagination(page, size)
	return s.stores.Orders.ListByUser(ctx, userID, offset, limit)
}

func (s *OrderService) List(ctx context.Context, page, size int) ([]models.Order, error) {
	offset, limit := pagination(page, size)
	return s.stores.Orders.List(ctx, offset, limit)
}

func (s *OrderService) publish(ctx context.Context, o models.Order, typ string, priority uint8) {
	if err := s.publisher.PublishOrderEvent(ctx, newEvent(o, typ, s.now()), priority); err != nil {
		logging.FromContext(ctx, s.logger).Warn("publish order event failed",
			zap.String("order_id", o.ID),
			zap.String("event", typ),
			zap.Error(err))
	}
}

func (s *OrderService) schedulePaymentCheck(ctx context.Context, o models.Order) {
	if err := s.publisher.PublishDelayedEvent(ctx, newEvent(o, EventPaymentCheck, s.now()), s.paymentCheckDelay); err != nil {
		logging.FromContext(ctx, s.logger).Warn("schedule payment check failed",
			zap.String("order_id", o.ID),
			zap.Error(err))
	}
}

// lockOrder 按 (productID, sizeID) 排序的副本。所有事务以相同顺序锁库存行，避免交叉加锁死锁。
func lockOrder(items []models.OrderItem) []models.OrderItem {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b models.OrderItem) int {
		return cmp.Or(strings.Compare(a.ProductID, b.ProductID), strings.Compare(a.SizeID, b.SizeID))
	})
	return sorted
}

func pagination(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return (page - 1) * size, size
}

func outcome(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return errs.ErrInternal.Code
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
