package router

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"shop_backend/internal/config"
	"shop_backend/internal/coupon"
	"shop_backend/internal/middleware"
	"shop_backend/internal/model"
	"shop_backend/internal/order"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, db *gorm.DB, rdb *rd.Client, orch *order.Orchestrator, alloc *coupon.Allocator, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Categories
	r.GET("/api/categories", listCategories(db))
	r.POST("/api/categories", createCategory(db))

	// Products
	r.GET("/api/products", listProducts(db))
	r.POST("/api/products", createProduct(db))
	r.GET("/api/products/:id", getProduct(db))

	// Customers
	r.GET("/api/customers", listCustomers(db))
	r.POST("/api/customers", createCustomer(db))

	// Coupons
	r.POST("/api/coupons", createCoupon(alloc))
	r.GET("/api/coupons/:id/slots", getCouponSlots(alloc))

	// Orders
	r.POST("/api/orders", middleware.RedisRateLimit(rdb, cfg.OrderRateLimit, cfg.OrderRateWindow), createOrder(orch))
	r.GET("/api/orders/:code", getOrder(db))
}

// listCategories 查询分类列表。
func listCategories(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.Category
		if err := db.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func createCategory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
			Slug string `json:"slug" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		cat := &model.Category{Name: req.Name, Slug: req.Slug}
		if err := db.Create(cat).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": cat})
	}
}

// listProducts 查询商品列表。
func listProducts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.Product
		if err := db.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func createProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			CategoryID uint   `json:"category_id" binding:"required"`
			Name       string `json:"name" binding:"required"`
			SKU        string `json:"sku" binding:"required"`
			Price      int64  `json:"price" binding:"required,min=1"`
			Weight     int64  `json:"weight" binding:"omitempty,min=0"`
			Width      int64  `json:"width" binding:"omitempty,min=0"`
			Height     int64  `json:"height" binding:"omitempty,min=0"`
			Length     int64  `json:"length" binding:"omitempty,min=0"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		p := &model.Product{
			CategoryID: req.CategoryID,
			Name:       req.Name,
			SKU:        req.SKU,
			Price:      req.Price,
			Weight:     req.Weight,
			Width:      req.Width,
			Height:     req.Height,
			Length:     req.Length,
		}
		if err := db.Create(p).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func getProduct(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid product id"})
			return
		}
		var p model.Product
		if err := db.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "product not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": p})
	}
}

func listCustomers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var list []model.Customer
		if err := db.Find(&list).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

func createCustomer(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name       string `json:"name" binding:"required"`
			Email      string `json:"email" binding:"required,email"`
			Street     string `json:"street" binding:"required"`
			Number     string `json:"number"`
			Complement string `json:"complement"`
			City       string `json:"city" binding:"required"`
			State      string `json:"state" binding:"required"`
			PostalCode string `json:"postal_code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		cust := &model.Customer{
			Name:       req.Name,
			Email:      req.Email,
			Street:     req.Street,
			Number:     req.Number,
			Complement: req.Complement,
			City:       req.City,
			State:      req.State,
			PostalCode: req.PostalCode,
		}
		if err := db.Create(cust).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": cust})
	}
}

// createCoupon 创建优惠券；LIMITED 券同事务生成名额行。
func createCoupon(alloc *coupon.Allocator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Code       string `json:"code" binding:"required"`
			Percentage int64  `json:"percentage" binding:"required,min=1,max=100"`
			Type       string `json:"type" binding:"required,oneof=LIMITED UNLIMITED"`
			MaxUses    int    `json:"max_uses" binding:"omitempty,min=1"`
			ExpiresAt  string `json:"expires_at" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		expires, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "expires_at must be RFC3339"})
			return
		}
		cp := &model.Coupon{
			Code:       req.Code,
			Percentage: req.Percentage,
			Type:       model.CouponType(req.Type),
			MaxUses:    req.MaxUses,
			Active:     true,
			ExpiresAt:  expires,
		}
		if err := alloc.Provision(c.Request.Context(), cp); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": cp})
	}
}

// getCouponSlots 查询剩余名额。
func getCouponSlots(alloc *coupon.Allocator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid coupon id"})
			return
		}
		n, err := alloc.Remaining(c.Request.Context(), uint(id))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"remaining": n}})
	}
}

// createOrder 下单入口，错误按分类映射状态码：
// 业务拒绝（校验 / 不存在 / 名额耗尽）是 4xx，事务失败是 500。
func createOrder(orch *order.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			CustomerID    uint                `json:"customer_id" binding:"required,min=1"`
			Items         []order.ItemCommand `json:"items" binding:"required,min=1,dive"`
			FreightType   string              `json:"freight_type" binding:"omitempty,oneof=STANDARD EXPRESS"`
			PaymentMethod string              `json:"payment_method" binding:"required"`
			Installments  int                 `json:"installments" binding:"omitempty,min=1"`
			CouponCode    string              `json:"coupon_code"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if req.FreightType == "" {
			req.FreightType = "STANDARD"
		}
		if req.Installments <= 0 {
			req.Installments = 1
		}

		ord, err := orch.CreateOrder(c.Request.Context(), order.CreateOrderCommand{
			CustomerID:    req.CustomerID,
			Items:         req.Items,
			FreightType:   req.FreightType,
			PaymentMethod: req.PaymentMethod,
			Installments:  req.Installments,
			CouponCode:    req.CouponCode,
		})
		if err != nil {
			writeOrderError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": ord})
	}
}

// writeOrderError 把编排器错误分类映射为 HTTP 响应。
func writeOrderError(c *gin.Context, err error) {
	var verrs order.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "validation failed", "data": verrs})
	case errors.Is(err, order.ErrCustomerNotFound), errors.Is(err, coupon.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": err.Error()})
	case errors.Is(err, coupon.ErrCapacityExhausted):
		c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": err.Error()})
	case errors.Is(err, order.ErrProductsUnresolved),
		errors.Is(err, coupon.ErrInactive),
		errors.Is(err, coupon.ErrExpired):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
	case errors.Is(err, order.ErrTransaction):
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
	}
}

// getOrder 按订单号查询订单（含条目 / 配送 / 支付）。
func getOrder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		var ord model.Order
		err := db.
			Preload("Items").
			Preload("Delivery").
			Preload("Payment").
			Where("code = ?", code).
			First(&ord).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": ord})
	}
}
