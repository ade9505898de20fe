package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"shop-service/models"
	"shop-service/services"
)

const (
	cartCookie       = "cartToken"
	cartCookieMaxAge = 30 * 24 * 60 * 60
)

type addCartItemReq struct {
	ProductID string `json:"productId" binding:"required"`
	SizeID    string `json:"sizeId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type updateCartItemReq struct {
	ProductID string `json:"productId" binding:"required"`
	SizeID    string `json:"sizeId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"gte=0"`
}

type CartController struct {
	carts  *services.CartService
	logger *zap.Logger
}

func NewCartController(carts *services.CartService, logger *zap.Logger) *CartController {
	return &CartController{carts: carts, logger: logger}
}

func (ctl *CartController) GetCart(c *gin.Context) {
	owner, ok := ctl.owner(c, false)
	if !ok {
		c.JSON(http.StatusOK, models.Cart{Items: []models.CartItem{}})
		return
	}
	cart, err := ctl.carts.Get(c.Request.Context(), owner)
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (ctl *CartController) AddItem(c *gin.Context) {
	var req addCartItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, ctl.logger, bindError(err))
		return
	}
	owner, _ := ctl.owner(c, true)
	cart, err := ctl.carts.AddItem(c.Request.Context(), owner, models.CartItem{
		ProductID: req.ProductID,
		SizeID:    req.SizeID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (ctl *CartController) UpdateItem(c *gin.Context) {
	var req updateCartItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, ctl.logger, bindError(err))
		return
	}
	owner, _ := ctl.owner(c, true)
	cart, err := ctl.carts.UpdateItem(c.Request.Context(), owner, models.CartItem{
		ProductID: req.ProductID,
		SizeID:    req.SizeID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (ctl *CartController) RemoveItem(c *gin.Context) {
	owner, ok := ctl.owner(c, false)
	if !ok {
		c.JSON(http.StatusOK, models.Cart{Items: []models.CartItem{}})
		return
	}
	cart, err := ctl.carts.RemoveItem(c.Request.Context(), owner, c.Param("productId"), c.Param("sizeId"))
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// MergeCart 登录后调用，把游客购物车并入用户购物车并清掉 cookie
func (ctl *CartController) MergeCart(c *gin.Context) {
	userID := currentUser(c)
	token, _ := c.Cookie(cartCookie)
	if token == "" {
		cart, err := ctl.carts.Get(c.Request.Context(), services.CartOwner{UserID: userID})
		if err != nil {
			writeError(c, ctl.logger, err)
			return
		}
		c.JSON(http.StatusOK, cart)
		return
	}
	cart, err := ctl.carts.Merge(c.Request.Context(), token, userID)
	if err != nil {
		writeError(c, ctl.logger, err)
		return
	}
	c.SetCookie(cartCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, cart)
}

// owner 登录用户按 userId，游客按 cartToken cookie；create 为 true 时没有 cookie 就新发一个
func (ctl *CartController) owner(c *gin.Context, create bool) (services.CartOwner, bool) {
	if userID := currentUser(c); userID != "" {
		return services.CartOwner{UserID: userID}, true
	}
	if token, err := c.Cookie(cartCookie); err == nil && token != "" {
		return services.CartOwner{GuestToken: token}, true
	}
	if !create {
		return services.CartOwner{}, false
	}
	token := uuid.NewString()
	c.SetCookie(cartCookie, token, cartCookieMaxAge, "/", "", false, true)
	return services.CartOwner{GuestToken: token}, true
}
