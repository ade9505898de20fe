package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shop-service/controllers"
)

func TestAllowOrigin(t *testing.T) {
	allow := allowOrigin([]string{" https://shop.example.com/ "})
	testCases := []struct {
		name   string
		origin string
		want   bool
	}{
		{name: "配置的域名", origin: "https://shop.example.com", want: true},
		{name: "本地开发", origin: "http://localhost", want: true},
		{name: "本地开发带端口", origin: "http://localhost:5173", want: true},
		{name: "localhost 前缀的外部域名", origin: "http://localhost.attacker.com", want: false},
		{name: "localhost 开头的外部域名", origin: "http://localhostevil.net", want: false},
		{name: "带用户信息", origin: "http://evil.com@localhost", want: false},
		{name: "https 本地不放行", origin: "https://localhost", want: false},
		{name: "未配置的域名", origin: "https://other.example.com", want: false},
		{name: "配置域名的子域名", origin: "https://shop.example.com.attacker.com", want: false},
		{name: "空", origin: "", want: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, allow(tc.origin))
		})
	}
}

func TestSetup_CORSCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	engine, err := Setup(Handlers{
		Orders:   &controllers.OrderController{},
		Vouchers: &controllers.VoucherController{},
		Payments: &controllers.PaymentController{},
		Carts:    &controllers.CartController{},
	}, Options{JWTSecret: "secret", CORSOrigins: []string{"https://shop.example.com"}, Logger: logger})
	require.NoError(t, err)

	testCases := []struct {
		name      string
		origin    string
		wantAllow string
	}{
		{name: "本地开发", origin: "http://localhost:3000", wantAllow: "http://localhost:3000"},
		{name: "伪装成 localhost", origin: "http://localhost.attacker.com"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", tc.origin)
			resp := httptest.NewRecorder()
			engine.ServeHTTP(resp, req)
			assert.Equal(t, tc.wantAllow, resp.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
