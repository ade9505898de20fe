package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ecodeclub/ekit/slice"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"shop-service/errs"
	"shop-service/logging"
	"shop-service/middlewares"
	"shop-service/utils"
)

var voucherCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// RegisterValidators 注册自定义校验规则，启动时调用一次
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("controllers: unexpected validator engine")
	}
	return v.RegisterValidation("voucher_code", func(fl validator.FieldLevel) bool {
		return voucherCodePattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
}

// writeError 业务错误按分类映射状态码，5xx 只返回通用提示
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.ErrInternal.Wrap(err)
	}
	status := errs.HTTPStatus(e.Kind)
	msg := e.Msg
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context(), logger).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		msg = errs.ErrInternal.Msg
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"code": e.Code, "error": msg})
}

// bindError 把 binding/validator 的错误转成 ValidationError
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		msgs := slice.Map(ve, func(_ int, fe validator.FieldError) string {
			return fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag())
		})
		return errs.ErrValidation.WithMsg(strings.Join(msgs, "; "))
	}
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError
	if errors.As(err, &se) || errors.As(err, &te) {
		return errs.ErrValidation.WithMsg("malformed request body")
	}
	return errs.ErrValidation.WithMsg(err.Error())
}

func currentUser(c *gin.Context) string {
	return c.GetString(middlewares.CtxUserID)
}

func isAdmin(c *gin.Context) bool {
	return c.GetString(middlewares.CtxRole) == utils.RoleAdmin
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	return page, size
}
