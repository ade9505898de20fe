package routes

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/ecodeclub/ekit/slice"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shop-service/controllers"
	"shop-service/middlewares"
)

type Handlers struct {
	Orders   *controllers.OrderController
	Vouchers *controllers.VoucherController
	Payments *controllers.PaymentController
	Carts    *controllers.CartController
}

type Options struct {
	JWTSecret   string
	CORSOrigins []string
	Logger      *zap.Logger
}

func Setup(h Handlers, opts Options) (*gin.Engine, error) {
	if err := controllers.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestLogger(opts.Logger))
	r.Use(middlewares.PrometheusMiddleware())
	r.Use(cors.New(cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Idempotency-Key"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin(opts.CORSOrigins),
	}))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := middlewares.AuthMiddleware(opts.JWTSecret)
	optional := middlewares.OptionalAuth(opts.JWTSecret)
	api := r.Group("/api")

	orders := api.Group("/orders", auth)
	{
		orders.POST("", h.Orders.CreateOrder)
		orders.GET("", h.Orders.GetUserOrders)
		orders.GET("/:id", h.Orders.GetOrderDetails)
		orders.POST("/:id/cancel", h.Orders.CancelOrder)
	}

	admin := api.Group("/admin", auth, middlewares.AdminOnly())
	{
		admin.GET("/orders", h.Orders.ListOrders)
		admin.PUT("/orders/:id/status", h.Orders.UpdateOrderStatus)
	}

	api.POST("/vouchers/apply", auth, h.Vouchers.ApplyVoucher)
	api.GET("/vouchers/available", optional, h.Vouchers.ListAvailable)

	// return 和 ipn 由网关回调，不带用户令牌，靠签名校验
	api.POST("/payments/vnpay", auth, h.Payments.CreateVNPayURL)
	api.GET("/payments/vnpay/return", h.Payments.VNPayReturn)
	api.GET("/payments/vnpay/ipn", h.Payments.VNPayIPN)

	cart := api.Group("/cart")
	{
		cart.GET("", optional, h.Carts.GetCart)
		cart.POST("/items", optional, h.Carts.AddItem)
		cart.PUT("/items", optional, h.Carts.UpdateItem)
		cart.DELETE("/items/:productId/:sizeId", optional, h.Carts.RemoveItem)
		cart.POST("/merge", auth, h.Carts.MergeCart)
	}
	return r, nil
}

// allowOrigin 本地开发放行 http://localhost 任意端口，其余只放行配置的域名
func allowOrigin(origins []string) func(origin string) bool {
	allowed := slice.Map(origins, func(_ int, o string) string {
		return strings.TrimSuffix(strings.TrimSpace(o), "/")
	})
	return func(origin string) bool {
		if isLocalhost(origin) {
			return true
		}
		return slice.Contains(allowed, origin)
	}
}

// isLocalhost 按主机名精确匹配，localhost.example.com 之类不算
func isLocalhost(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "http" || u.Path != "" || u.User != nil {
		return false
	}
	return u.Hostname() == "localhost"
}
