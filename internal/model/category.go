package model

import (
	"time"

	"gorm.io/gorm"
)

// Category 商品分类。
type Category struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name string `gorm:"size:128;not null" json:"name"`
	Slug string `gorm:"size:128;uniqueIndex;not null" json:"slug"`
}

func (Category) TableName() string { return "categories" }
