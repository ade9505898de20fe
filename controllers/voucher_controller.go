package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shop-service/services"
)

type applyVoucherReq struct {
	Code       string `json:"code" binding:"required,voucher_code"`
	OrderTotal int64  `json:"orderTotal" binding:"gte=0"`
}

type VoucherController struct {
	vouchers *services.VoucherService
	logger   *zap.Logger
}

func NewVoucherController(vouchers *services.VoucherService, logger *zap.Logger) *VoucherController {
	return &VoucherController{vouchers: vouchers, logger: logger}
}

// ApplyVoucher 结账页预览折扣，不消耗次数
func (ctl *VoucherController) ApplyVoucher(c *gin.Context) {
	var req applyVoucherReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, ctl.logger, bindError(err))
		return
	}
	preview, err := ctl.vouchers.Apply(c.Request.Context(), req.Code, req.OrderTotal)
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (ctl *VoucherController) ListAvailable(c *gin.Context) {
	vouchers, err := ctl.vouchers.ListAvailable(c.Request.Context())
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vouchers": vouchers})
}
