package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"shop-service/cache"
	"shop-service/controllers"
	"shop-service/models"
	"shop-service/payment"
	paymocks "shop-service/payment/mocks"
	"shop-service/repository/memory"
	"shop-service/routes"
	"shop-service/services"
	"shop-service/utils"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	server  *gin.Engine
	store   *memory.Store
	gateway *paymocks.MockGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	store.Catalog.Put(models.Product{
		ID:             "P1",
		Name:           "Basic Tee",
		Price:          100000,
		QuantityBySize: []models.SizeStock{{SizeID: "M", Name: "M", Quantity: 5}},
	})
	store.Vouchers.Put(models.Voucher{
		ID:            "v1",
		Code:          "SALE10",
		DiscountType:  models.DiscountPercent,
		DiscountValue: decimal.NewFromInt(10),
		Quantity:      10,
		StartDate:     time.Now().Add(-time.Hour),
		EndDate:       time.Now().Add(time.Hour),
		IsActive:      true,
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctrl := gomock.NewController(t)
	gateway := paymocks.NewMockGateway(ctrl)
	gateway.EXPECT().Method().Return("vnpay").AnyTimes()

	logger := zap.NewNop()
	orderSvc := services.NewOrderService(store.Stores(), logger)
	server, err := routes.Setup(routes.Handlers{
		Orders:   controllers.NewOrderController(orderSvc, cache.NewRequestDeduper(client, time.Hour), logger),
		Vouchers: controllers.NewVoucherController(services.NewVoucherService(store.Vouchers), logger),
		Payments: controllers.NewPaymentController(services.NewPaymentService(store.Orders, gateway, logger), "http://shop.local/payment-result", logger),
		Carts:    controllers.NewCartController(services.NewCartService(cache.NewRedisCartStore(client), store.Catalog), logger),
	}, routes.Options{JWTSecret: testSecret, Logger: logger})
	require.NoError(t, err)
	return &testEnv{server: server, store: store, gateway: gateway}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := utils.GenerateToken(testSecret, utils.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return tok
}

type call struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
	cookies []*http.Cookie
}

func (e *testEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	resp := httptest.NewRecorder()
	e.server.ServeHTTP(resp, req)
	return resp
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Code
}

func orderBody(items ...map[string]any) map[string]any {
	return map[string]any{
		"shippingAddress": "12 Nguyen Trai",
		"items":           items,
		"paymentMethod":   "cod",
	}
}

func TestOrderController_CreateOrder(t *testing.T) {
	testCases := []struct {
		name      string
		body      map[string]any
		token     bool
		wantCode  int
		wantErr   string
		wantFinal int64
		wantStock int
	}{
		{
			name:      "下单成功并忽略客户端价格",
			body:      orderBody(map[string]any{"productId": "P1", "sizeId": "M", "quantity": 2, "price": 1}),
			token:     true,
			wantCode:  http.StatusCreated,
			wantFinal: 200000,
			wantStock: 3,
		},
		{
			name: "使用优惠券",
			body: func() map[string]any {
				b := orderBody(map[string]any{"productId": "P1", "sizeId": "M", "quantity": 1})
				b["voucherCode"] = "sale10"
				return b
			}(),
			token:     true,
			wantCode:  http.StatusCreated,
			wantFinal: 90000,
			wantStock: 4,
		},
		{
			name:      "未登录",
			body:      orderBody(map[string]any{"productId": "P1", "sizeId": "M", "quantity": 1}),
			wantCode:  http.StatusUnauthorized,
			wantErr:   "UNAUTHORIZED",
			wantStock: 5,
		},
		{
			name:      "空订单",
			body:      orderBody(),
			token:     true,
			wantCode:  http.StatusBadRequest,
			wantErr:   "EMPTY_ORDER",
			wantStock: 5,
		},
		{
			name:      "数量为 0",
			body:      orderBody(map[string]any{"productId": "P1", "sizeId": "M", "quantity": 0}),
			token:     true,
			wantCode:  http.StatusBadRequest,
			wantErr:   "VALIDATION_ERROR",
			wantStock: 5,
		},
		{
			name: "支付方式不支持",
			body: func() map[string]any {
				b := orderBody(map[string]any{"productId": "P1", "sizeId": "M", "quantity": 1})
				b["paymentMethod"] = "bitcoin"
				return b
			}(),
			token:     true,
			wantCode:  http.StatusBadRequest,
			wantErr:   "INVALID_PAYMENT_METHOD",
			wantStock: 5,
		},
		{
			name: "优惠码格式错误",
			body: func() map[string]any {
				b := orderBody(map[string]any{"productId": "P1", "sizeId": "M", "quantity": 1})
				b["voucherCode"] = "!"
				return b
			}(),
			token:     true,
			wantCode:  http.StatusBadRequest,
			wantErr:   "VALIDATION_ERROR",
			wantStock: 5,
		},
		{
			name:      "库存不足",
			body:      orderBody(map[string]any{"productId": "P1", "sizeId": "M", "quantity": 6}),
			token:     true,
			wantCode:  http.StatusConflict,
			wantErr:   "OUT_OF_STOCK",
			wantStock: 5,
		},
		{
			name:      "商品不存在",
			body:      orderBody(map[string]any{"productId": "P9", "sizeId": "M", "quantity": 1}),
			token:     true,
			wantCode:  http.StatusNotFound,
			wantErr:   "PRODUCT_NOT_FOUND",
			wantStock: 5,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			c := call{method: http.MethodPost, path: "/api/orders", body: tc.body}
			if tc.token {
				c.token = token(t, "u1", "")
			}
			resp := env.do(t, c)

			assert.Equal(t, tc.wantCode, resp.Code)
			assert.Equal(t, tc.wantStock, env.store.Catalog.Stock("P1", "M"))
			if tc.wantErr != "" {
				assert.Equal(t, tc.wantErr, errorCode(t, resp))
				return
			}
			var order models.Order
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &order))
			assert.Equal(t, tc.wantFinal, order.FinalAmount)
			assert.Equal(t, "u1", order.UserID)
			assert.Equal(t, int64(100000), order.Items[0].Price)
		})
	}
}

func TestOrderController_IdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	tok := token(t, "u1", "")
	headers := map[string]string{"Idempotency-Key": "checkout-1"}

	// 失败的请求释放 key，可以重试
	resp := env.do(t, call{method: http.MethodPost, path: "/api/orders", token: tok, headers: headers,
		body: orderBody(map[string]any{"productId": "P1", "sizeId": "M", "quantity": 9})})
	assert.Equal(t, http.StatusConflict, resp.Code)

	body := orderBody(map[string]any{"productId": "P1", "sizeId": "M", "quantity": 1})
	resp = env.do(t, call{method: http.MethodPost, path: "/api/orders", token: tok, headers: headers, body: body})
	assert.Equal(t, http.StatusCreated, resp.Code)

	resp = env.do(t, call{method: http.MethodPost, path: "/api/orders", token: tok, headers: headers, body: body})
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "DUPLICATE_REQUEST", errorCode(t, resp))
	assert.Equal(t, 4, env.store.Catalog.Stock("P1", "M"))
}

func placeOrder(t *testing.T, env *testEnv, userID string, qty int) models.Order {
	t.Helper()
	resp := env.do(t, call{method: http.MethodPost, path: "/api/orders", token: token(t, userID, ""),
		body: orderBody(map[string]any{"productId": "P1", "sizeId": "M", "quantity": qty})})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var order models.Order
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &order))
	return order
}

func TestOrderController_StatusFlow(t *testing.T) {
	env := newTestEnv(t)
	order := placeOrder(t, env, "u1", 3)
	admin := token(t, "admin-1", utils.RoleAdmin)
	statusPath := "/api/admin/orders/" + order.ID + "/status"

	resp := env.do(t, call{method: http.MethodPut, path: statusPath, token: token(t, "u1", ""), body: map[string]string{"status": "shipping"}})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, call{method: http.MethodPut, path: statusPath, token: admin, body: map[string]string{"status": "bogus"}})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "INVALID_STATUS", errorCode(t, resp))

	resp = env.do(t, call{method: http.MethodPut, path: statusPath, token: admin, body: map[string]string{"status": "success"}})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, resp))

	resp = env.do(t, call{method: http.MethodPut, path: statusPath, token: admin, body: map[string]string{"status": "cancelled"}})
	require.Equal(t, http.StatusOK, resp.Code)
	var updated models.Order
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &updated))
	assert.Equal(t, models.StatusCancelled, updated.Status)
	assert.Equal(t, 5, env.store.Catalog.Stock("P1", "M"))

	// 终态之后不能再变更
	resp = env.do(t, call{method: http.MethodPut, path: statusPath, token: admin, body: map[string]string{"status": "shipping"}})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, 5, env.store.Catalog.Stock("P1", "M"))

	resp = env.do(t, call{method: http.MethodPut, path: "/api/admin/orders/missing/status", token: admin, body: map[string]string{"status": "shipping"}})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestOrderController_OwnerAccess(t *testing.T) {
	env := newTestEnv(t)
	order := placeOrder(t, env, "u1", 1)

	resp := env.do(t, call{method: http.MethodGet, path: "/api/orders/" + order.ID, token: token(t, "u2", "")})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.do(t, call{method: http.MethodGet, path: "/api/orders/" + order.ID, token: token(t, "admin-1", utils.RoleAdmin)})
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = env.do(t, call{method: http.MethodGet, path: "/api/orders", token: token(t, "u1", "")})
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		Orders []models.Order `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Len(t, list.Orders, 1)

	resp = env.do(t, call{method: http.MethodPost, path: "/api/orders/" + order.ID + "/cancel", token: token(t, "u2", "")})
	assert.Equal(t, http.StatusNotFound, resp.Code)
	resp = env.do(t, call{method: http.MethodPost, path: "/api/orders/" + order.ID + "/cancel", token: token(t, "u1", "")})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 5, env.store.Catalog.Stock("P1", "M"))
}

func TestVoucherController_ApplyVoucher(t *testing.T) {
	testCases := []struct {
		name     string
		body     map[string]any
		wantCode int
		wantBody string
	}{
		{
			name:     "预览折扣",
			body:     map[string]any{"code": "sale10", "orderTotal": 250000},
			wantCode: http.StatusOK,
			wantBody: `{"voucherId":"v1","code":"SALE10","discountAmount":25000,"finalPrice":225000}`,
		},
		{
			name:     "不存在",
			body:     map[string]any{"code": "NOPE", "orderTotal": 250000},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "缺少优惠码",
			body:     map[string]any{"orderTotal": 250000},
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp := env.do(t, call{method: http.MethodPost, path: "/api/vouchers/apply", token: token(t, "u1", ""), body: tc.body})
			assert.Equal(t, tc.wantCode, resp.Code)
			if tc.wantBody != "" {
				assert.JSONEq(t, tc.wantBody, resp.Body.String())
			}
		})
	}
}

func TestPaymentController_CreateVNPayURL(t *testing.T) {
	env := newTestEnv(t)
	order := placeOrder(t, env, "u1", 1)
	env.gateway.EXPECT().BuildRedirectURL(gomock.Any()).DoAndReturn(func(req payment.Request) (string, error) {
		assert.Equal(t, order.ID, req.OrderID)
		return "https://sandbox.example/pay?x=1", nil
	})

	resp := env.do(t, call{method: http.MethodPost, path: "/api/payments/vnpay", token: token(t, "u1", ""),
		body: map[string]any{"orderId": order.ID, "amount": order.FinalAmount}})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"paymentUrl":"https://sandbox.example/pay?x=1"}`, resp.Body.String())

	resp = env.do(t, call{method: http.MethodPost, path: "/api/payments/vnpay", token: token(t, "u1", ""),
		body: map[string]any{"orderId": order.ID, "amount": 1}})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "AMOUNT_MISMATCH", errorCode(t, resp))
}

func TestPaymentController_VNPayIPN(t *testing.T) {
	testCases := []struct {
		name     string
		cb       func(o models.Order) payment.Callback
		repeat   int
		wantCode string
		wantPaid bool
	}{
		{
			name: "确认成功",
			cb: func(o models.Order) payment.Callback {
				return payment.Callback{Verified: true, OrderID: o.ID, ResponseCode: "00", Amount: o.FinalAmount, Success: true}
			},
			repeat:   1,
			wantCode: "00",
			wantPaid: true,
		},
		{
			name: "重复通知",
			cb: func(o models.Order) payment.Callback {
				return payment.Callback{Verified: true, OrderID: o.ID, ResponseCode: "00", Amount: o.FinalAmount, Success: true}
			},
			repeat:   2,
			wantCode: "02",
			wantPaid: true,
		},
		{
			name: "签名错误",
			cb: func(o models.Order) payment.Callback {
				return payment.Callback{OrderID: o.ID}
			},
			repeat:   1,
			wantCode: "97",
		},
		{
			name: "订单不存在",
			cb: func(o models.Order) payment.Callback {
				return payment.Callback{Verified: true, OrderID: "missing", ResponseCode: "00", Amount: o.FinalAmount, Success: true}
			},
			repeat:   1,
			wantCode: "01",
		},
		{
			name: "金额不对",
			cb: func(o models.Order) payment.Callback {
				return payment.Callback{Verified: true, OrderID: o.ID, ResponseCode: "00", Amount: 1, Success: true}
			},
			repeat:   1,
			wantCode: "04",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			order := placeOrder(t, env, "u1", 1)
			env.gateway.EXPECT().VerifyCallback(gomock.Any()).Return(tc.cb(order), nil).Times(tc.repeat)

			var resp *httptest.ResponseRecorder
			for i := 0; i < tc.repeat; i++ {
				resp = env.do(t, call{method: http.MethodGet, path: "/api/payments/vnpay/ipn?vnp_TxnRef=" + order.ID})
			}
			require.Equal(t, http.StatusOK, resp.Code)
			var body struct {
				RspCode string `json:"RspCode"`
			}
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.RspCode)

			saved, err := env.store.Orders.FindByID(context.Background(), order.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantPaid, saved.IsPaid)
		})
	}
}

func TestPaymentController_VNPayReturn(t *testing.T) {
	env := newTestEnv(t)
	order := placeOrder(t, env, "u1", 1)
	env.gateway.EXPECT().VerifyCallback(gomock.Any()).
		Return(payment.Callback{Verified: true, OrderID: order.ID, ResponseCode: "24"}, nil)

	resp := env.do(t, call{method: http.MethodGet, path: "/api/payments/vnpay/return?vnp_TxnRef=" + order.ID})
	require.Equal(t, http.StatusFound, resp.Code)
	loc, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "shop.local", loc.Host)
	assert.Equal(t, order.ID, loc.Query().Get("orderId"))
	assert.Equal(t, "24", loc.Query().Get("code"))

	env.gateway.EXPECT().VerifyCallback(gomock.Any()).Return(payment.Callback{}, nil)
	resp = env.do(t, call{method: http.MethodGet, path: "/api/payments/vnpay/return?vnp_TxnRef=" + order.ID})
	require.Equal(t, http.StatusFound, resp.Code)
	loc, err = url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "97", loc.Query().Get("code"))
	assert.Equal(t, order.ID, loc.Query().Get("orderId"))
}

func TestCartController_GuestThenMerge(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, call{method: http.MethodGet, path: "/api/cart"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"items":[]}`, resp.Body.String())

	resp = env.do(t, call{method: http.MethodPost, path: "/api/cart/items", body: map[string]any{"productId": "P1", "sizeId": "M", "quantity": 2}})
	require.Equal(t, http.StatusOK, resp.Code)
	cookies := resp.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "cartToken", cookies[0].Name)
	assert.Equal(t, 30*24*60*60, cookies[0].MaxAge)

	resp = env.do(t, call{method: http.MethodPost, path: "/api/cart/items", cookies: cookies, body: map[string]any{"productId": "P1", "sizeId": "M", "quantity": 1}})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, resp.Result().Cookies())
	assert.JSONEq(t, `{"items":[{"productId":"P1","sizeId":"M","quantity":3}]}`, resp.Body.String())

	resp = env.do(t, call{method: http.MethodPost, path: "/api/cart/items", cookies: cookies, body: map[string]any{"productId": "P9", "sizeId": "M", "quantity": 1}})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	tok := token(t, "u1", "")
	resp = env.do(t, call{method: http.MethodPost, path: "/api/cart/merge", token: tok, cookies: cookies})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"items":[{"productId":"P1","sizeId":"M","quantity":3}]}`, resp.Body.String())

	resp = env.do(t, call{method: http.MethodPut, path: "/api/cart/items", token: tok, body: map[string]any{"productId": "P1", "sizeId": "M", "quantity": 0}})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"items":[]}`, resp.Body.String())
}
