package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	detailed := ErrOutOfStock.WithMsg("P1/M: only 2 left")
	wrapped := fmt.Errorf("place order: %w", detailed)

	assert.True(t, errors.Is(wrapped, ErrOutOfStock))
	assert.False(t, errors.Is(wrapped, ErrVoucherExhausted))
	assert.Equal(t, KindOutOfStock, KindOf(wrapped))
	assert.Equal(t, "OUT_OF_STOCK", ErrOutOfStock.Code)
	assert.Equal(t, "insufficient stock", ErrOutOfStock.Msg)
}

func TestStorage(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Storage(cause)

	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, cause))
	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.Equal(t, "internal storage error", e.Msg)

	// 已经是业务错误的保持原样
	assert.Equal(t, error(ErrOrderNotFound), Storage(ErrOrderNotFound))
	assert.NoError(t, Storage(nil))
}

func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{name: "参数错误", err: ErrEmptyOrder, want: http.StatusBadRequest},
		{name: "订单不存在", err: ErrOrderNotFound, want: http.StatusNotFound},
		{name: "库存不足", err: ErrOutOfStock, want: http.StatusConflict},
		{name: "优惠券不可用", err: ErrVoucherBelowMin, want: http.StatusBadRequest},
		{name: "状态流转非法", err: ErrInvalidTransition, want: http.StatusBadRequest},
		{name: "签名错误", err: ErrSignatureInvalid, want: http.StatusBadRequest},
		{name: "存储错误", err: Storage(errors.New("boom")), want: http.StatusInternalServerError},
		{name: "未知错误", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(KindOf(tc.err)))
		})
	}
}
