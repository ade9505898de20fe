package middlewares

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"shop-service/errs"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_service_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shop_service_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shop_service_http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_service_order_operations_total",
			Help: "Total number of order operations by result code",
		},
		[]string{"operation", "result"},
	)
)

// PrometheusMiddleware 收集 Prometheus 指标，未匹配路由统一记为 unmatched
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// RecordOrderOperation 记录订单操作结果，失败时按错误码分类
func RecordOrderOperation(operation string, err error) {
	orderOperations.WithLabelValues(operation, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return errs.ErrInternal.Code
}
