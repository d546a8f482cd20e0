package model

// Sequence 全局单调递增计数器（订单号等）。
// 取号必须走数据库原子 UPDATE，进程内不缓存，避免并发重号。
type Sequence struct {
	ID    uint   `gorm:"primarykey" json:"id"`
	Name  string `gorm:"size:32;uniqueIndex;not null" json:"name"`
	Value int64  `gorm:"not null;default:0" json:"value"`
}

func (Sequence) TableName() string { return "sequences" }
