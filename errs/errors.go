package errs

import (
	"errors"
	"net/http"
)

// Kind 错误分类，决定 HTTP 状态码
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindOutOfStock
	KindVoucherIneligible
	KindInvalidTransition
	KindSignatureInvalid
	KindStorage
	KindConflict
	KindForbidden
)

// Error 业务错误，Code 是给客户端的稳定错误码
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，WithMsg/Wrap 得到的副本仍然匹配原始错误
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMsg 返回替换了提示信息的副本
func (e *Error) WithMsg(msg string) *Error {
	cp := *e
	cp.Msg = msg
	return &cp
}

// Wrap 返回携带底层原因的副本
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

var (
	ErrValidation        = New(KindValidation, "VALIDATION_ERROR", "invalid request")
	ErrEmptyOrder        = New(KindValidation, "EMPTY_ORDER", "order must contain at least one item")
	ErrInvalidStatus     = New(KindValidation, "INVALID_STATUS", "unknown order status")
	ErrInvalidPayment    = New(KindValidation, "INVALID_PAYMENT_METHOD", "unknown payment method")
	ErrAmountMismatch    = New(KindValidation, "AMOUNT_MISMATCH", "amount does not match order total")
	ErrOrderAlreadyPaid  = New(KindValidation, "ORDER_ALREADY_PAID", "order is already paid")
	ErrOrderNotPayable   = New(KindValidation, "ORDER_NOT_PAYABLE", "order can no longer be paid")
	ErrOrderNotFound     = New(KindNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrProductNotFound   = New(KindNotFound, "PRODUCT_NOT_FOUND", "product not found")
	ErrVoucherNotFound   = New(KindNotFound, "VOUCHER_NOT_FOUND", "voucher not found or inactive")
	ErrOutOfStock        = New(KindOutOfStock, "OUT_OF_STOCK", "insufficient stock")
	ErrVoucherWindow     = New(KindVoucherIneligible, "VOUCHER_OUTSIDE_WINDOW", "voucher is not valid at this time")
	ErrVoucherExhausted  = New(KindVoucherIneligible, "VOUCHER_EXHAUSTED", "voucher has no remaining uses")
	ErrVoucherBelowMin   = New(KindVoucherIneligible, "VOUCHER_BELOW_MINIMUM", "order total is below the voucher minimum")
	ErrInvalidTransition = New(KindInvalidTransition, "INVALID_TRANSITION", "order status transition is not allowed")
	ErrSignatureInvalid  = New(KindSignatureInvalid, "SIGNATURE_INVALID", "payment signature verification failed")
	ErrDuplicateRequest  = New(KindConflict, "DUPLICATE_REQUEST", "request has already been processed")
	ErrCartConflict      = New(KindConflict, "CART_CONFLICT", "cart changed during merge, please retry")
	ErrForbidden         = New(KindForbidden, "FORBIDDEN", "access denied")
	ErrStorage           = New(KindStorage, "STORAGE_FAILURE", "internal storage error")
	ErrInternal          = New(KindInternal, "INTERNAL_ERROR", "internal server error")
)

// Storage 包装持久化层错误，对外只暴露通用提示
func Storage(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrStorage.Wrap(err)
}

// KindOf 取错误分类，非业务错误视为内部错误
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindVoucherIneligible, KindInvalidTransition, KindSignatureInvalid:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindOutOfStock, KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
