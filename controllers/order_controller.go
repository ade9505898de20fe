package controllers

import (
	"context"
	"net/http"

	"github.com/ecodeclub/ekit/slice"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shop-service/cache"
	"shop-service/errs"
	"shop-service/middlewares"
	"shop-service/models"
	"shop-service/services"
)

const headerIdempotencyKey = "Idempotency-Key"

type orderItemReq struct {
	ProductID string `json:"productId" binding:"required"`
	SizeID    string `json:"sizeId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	Color     string `json:"color"`
	// Size 和 Price 仅为兼容前端，服务端不使用
	Size  string `json:"size"`
	Price int64  `json:"price"`
}

type createOrderReq struct {
	ShippingAddress string         `json:"shippingAddress" binding:"required,max=500"`
	Items           []orderItemReq `json:"items" binding:"dive"`
	VoucherCode     string         `json:"voucherCode" binding:"omitempty,voucher_code"`
	PaymentMethod   string         `json:"paymentMethod" binding:"required"`
	Note            string         `json:"note" binding:"max=1000"`
}

type updateStatusReq struct {
	Status string `json:"status" binding:"required"`
}

type OrderController struct {
	orders *services.OrderService
	// deduper 为 nil 时不做 Idempotency-Key 去重
	deduper *cache.RequestDeduper
	logger  *zap.Logger
}

func NewOrderController(orders *services.OrderService, deduper *cache.RequestDeduper, logger *zap.Logger) *OrderController {
	return &OrderController{orders: orders, deduper: deduper, logger: logger}
}

func (ctl *OrderController) CreateOrder(c *gin.Context) {
	var err error
	defer func() {
		middlewares.RecordOrderOperation("create", err)
	}()

	var req createOrderReq
	if err = c.ShouldBindJSON(&req); err != nil {
		err = bindError(err)
		writeError(c, ctl.logger, err)
		return
	}
	method, err := models.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}

	ctx := c.Request.Context()
	userID := currentUser(c)
	if key := c.GetHeader(headerIdempotencyKey); key != "" && ctl.deduper != nil {
		scope := "order:" + userID
		var claimed bool
		claimed, err = ctl.deduper.Claim(ctx, scope, key)
		if err == nil && !claimed {
			err = errs.ErrDuplicateRequest
		}
		if err != nil {
			writeError(c, ctl.logger, err)
			return
		}
		defer func() {
			// 下单失败允许客户端用同一个 key 重试
			if err != nil {
				_ = ctl.deduper.Release(context.WithoutCancel(ctx), scope, key)
			}
		}()
	}

	order, err := ctl.orders.PlaceOrder(ctx, models.PlaceOrderCommand{
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
		Items: slice.Map(req.Items, func(_ int, it orderItemReq) models.OrderLine {
			return models.OrderLine{
				ProductID: it.ProductID,
				SizeID:    it.SizeID,
				Quantity:  it.Quantity,
				Color:     it.Color,
			}
		}),
		VoucherCode:   req.VoucherCode,
		PaymentMethod: method,
		Note:          req.Note,
	})
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (ctl *OrderController) GetUserOrders(c *gin.Context) {
	page, size := pageParams(c)
	orders, err := ctl.orders.ListByUser(c.Request.Context(), currentUser(c), page, size)
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "page": page})
}

// GetOrderDetails 管理员可以查看任意订单
func (ctl *OrderController) GetOrderDetails(c *gin.Context) {
	var (
		order models.Order
		err   error
	)
	if isAdmin(c) {
		order, err = ctl.orders.Get(c.Request.Context(), c.Param("id"))
	} else {
		order, err = ctl.orders.GetForUser(c.Request.Context(), currentUser(c), c.Param("id"))
	}
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (ctl *OrderController) CancelOrder(c *gin.Context) {
	order, err := ctl.orders.CancelByOwner(c.Request.Context(), currentUser(c), c.Param("id"))
	middlewares.RecordOrderOperation("cancel", err)
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (ctl *OrderController) ListOrders(c *gin.Context) {
	page, size := pageParams(c)
	orders, err := ctl.orders.List(c.Request.Context(), page, size)
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "page": page})
}

func (ctl *OrderController) UpdateOrderStatus(c *gin.Context) {
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, ctl.logger, bindError(err))
		return
	}
	order, err := ctl.orders.UpdateStatus(c.Request.Context(), c.Param("id"), models.OrderStatus(req.Status))
	middlewares.RecordOrderOperation("update_status", err)
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
