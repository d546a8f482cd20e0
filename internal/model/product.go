package model

import (
	"time"

	"gorm.io/gorm"
)

// Product 在售商品：价格与体积重量用于下单时的快照与运费计算。
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CategoryID uint   `gorm:"not null;index" json:"category_id"`
	Name       string `gorm:"size:128;not null" json:"name"`
	SKU        string `gorm:"size:64;uniqueIndex;not null" json:"sku"`

	// Price 单位：分。历史订单保存自己的价格快照，改价不回溯。
	Price int64 `gorm:"not null" json:"price"`

	// 运费计算用的体积重量（克 / 毫米）。
	Weight int64 `gorm:"not null;default:0" json:"weight"`
	Width  int64 `gorm:"not null;default:0" json:"width"`
	Height int64 `gorm:"not null;default:0" json:"height"`
	Length int64 `gorm:"not null;default:0" json:"length"`
}

func (Product) TableName() string { return "products" }
