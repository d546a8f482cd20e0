package model

import (
	"time"

	"gorm.io/gorm"
)

// CouponType 区分限量券与不限量券。
type CouponType string

const (
	CouponLimited   CouponType = "LIMITED"
	CouponUnlimited CouponType = "UNLIMITED"
)

// Coupon 百分比折扣券。LIMITED 券在创建时一次性生成 MaxUses 行名额。
type Coupon struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Code       string     `gorm:"size:64;uniqueIndex;not null" json:"code"`
	Percentage int64      `gorm:"not null" json:"percentage"` // 折扣百分比（0-100）
	Type       CouponType `gorm:"size:16;not null" json:"type"`
	MaxUses    int        `gorm:"not null;default:0" json:"max_uses"` // UNLIMITED 时为 0
	// Active 无列默认值，创建方必须显式赋值；带 default 标签时 gorm
	// 会在 Create 里丢弃零值，false 永远写不进去。
	Active    bool      `gorm:"not null" json:"active"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"` // 到期时刻（含）即失效
}

func (Coupon) TableName() string { return "coupons" }

// CouponSlot 一行代表一个可占用的兑换名额。
// 占用 = 原子删除任意一行；名额行之间完全等价（匿名、可互换）。
type CouponSlot struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	CouponID uint `gorm:"not null;index" json:"coupon_id"`
}

func (CouponSlot) TableName() string { return "coupon_slots" }
