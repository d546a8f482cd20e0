package model

import (
	"time"

	"gorm.io/gorm"
)

// Customer 买家档案：下单时只读，地址字段用于运费与收货。
type Customer struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name       string `gorm:"size:128;not null" json:"name"`
	Email      string `gorm:"size:128;uniqueIndex;not null" json:"email"`
	Street     string `gorm:"size:128;not null" json:"street"`
	Number     string `gorm:"size:16" json:"number"`
	Complement string `gorm:"size:64" json:"complement"`
	City       string `gorm:"size:64;not null" json:"city"`
	State      string `gorm:"size:32;not null" json:"state"`
	PostalCode string `gorm:"size:16;not null;index" json:"postal_code"`
}

func (Customer) TableName() string { return "customers" }
