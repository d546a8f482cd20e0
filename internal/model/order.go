package model

import (
	"time"

	"gorm.io/gorm"
)

// OrderStatus 订单状态机的当前位置。本核心只负责创建，后续流转由其他流程驱动。
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Order 订单聚合根。除状态流转外持久化后不可变。
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// OrderID 聚合全局标识（uuid），同时作为事件分区 key。
	OrderID string `gorm:"size:64;uniqueIndex;not null" json:"order_id"`
	// Code 人类可读订单号，来自全局单调递增序列。
	Code       string `gorm:"size:32;uniqueIndex;not null" json:"code"`
	CustomerID uint   `gorm:"not null;index" json:"customer_id"`

	Items    []OrderItem   `gorm:"foreignKey:OrderRef" json:"items"`
	Delivery OrderDelivery `gorm:"foreignKey:OrderRef" json:"delivery"`
	Payment  OrderPayment  `gorm:"foreignKey:OrderRef" json:"payment"`

	// 优惠券字段仅在成功占用名额后写入。
	CouponCode       string `gorm:"size:64" json:"coupon_code,omitempty"`
	CouponPercentage int64  `gorm:"not null;default:0" json:"coupon_percentage,omitempty"`

	// TotalAmount 单位分：条目小计 + 运费 - 折扣。
	TotalAmount int64       `gorm:"not null" json:"total_amount"`
	Status      OrderStatus `gorm:"size:16;not null;default:'PENDING'" json:"status"`
	Version     int64       `gorm:"not null;default:1" json:"version"`
}

func (Order) TableName() string { return "orders" }

// OrderItem 订单条目：价格为下单时刻的快照，商品日后改价不影响历史订单。
type OrderItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderRef  uint   `gorm:"not null;index" json:"-"`
	ProductID uint   `gorm:"not null" json:"product_id"`
	SKU       string `gorm:"size:64;not null" json:"sku"`
	Quantity  int    `gorm:"not null;default:1" json:"quantity"`
	Price     int64  `gorm:"not null" json:"price"` // 快照单价，单位分
}

func (OrderItem) TableName() string { return "order_items" }

// Subtotal 条目小计（分）。
func (i OrderItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// OrderDelivery 随订单一次性落库的配送信息，之后不再更新。
type OrderDelivery struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderRef     uint   `gorm:"not null;index" json:"-"`
	FreightType  string `gorm:"size:32;not null" json:"freight_type"`
	Price        int64  `gorm:"not null" json:"price"` // 运费，单位分
	DeadlineDays int    `gorm:"not null;default:0" json:"deadline_days"`

	Street     string `gorm:"size:128;not null" json:"street"`
	Number     string `gorm:"size:16" json:"number"`
	Complement string `gorm:"size:64" json:"complement"`
	City       string `gorm:"size:64;not null" json:"city"`
	State      string `gorm:"size:32;not null" json:"state"`
	PostalCode string `gorm:"size:16;not null" json:"postal_code"`
}

func (OrderDelivery) TableName() string { return "order_deliveries" }

// OrderPayment 随订单一次性落库的支付信息。
type OrderPayment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	OrderRef     uint   `gorm:"not null;index" json:"-"`
	Method       string `gorm:"size:32;not null" json:"method"`
	Installments int    `gorm:"not null;default:1" json:"installments"`
}

func (OrderPayment) TableName() string { return "order_payments" }
