package order

import (
	"context"
	"fmt"

	"shop_backend/internal/model"

	"gorm.io/gorm"
)

// orderSequenceName 订单号使用的计数器名。
const orderSequenceName = "order_code"

// Sequence 订单号发号器：每次取号走数据库事务内的原子 UPDATE，
// 进程内不缓存，多实例并发取号也不会重号。
type Sequence struct {
	db   *gorm.DB
	name string
}

func NewSequence(db *gorm.DB) *Sequence {
	return &Sequence{db: db, name: orderSequenceName}
}

// Next 返回下一个严格递增的序号。
func (s *Sequence) Next(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Sequence{}).
			Where("name = ?", s.name).
			Update("value", gorm.Expr("value + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 计数器行不存在时惰性创建；并发首建由唯一索引兜底。
			if err := tx.Create(&model.Sequence{Name: s.name, Value: 1}).Error; err != nil {
				return err
			}
			next = 1
			return nil
		}

		var seq model.Sequence
		if err := tx.Where("name = ?", s.name).First(&seq).Error; err != nil {
			return err
		}
		next = seq.Value
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", s.name, err)
	}
	return next, nil
}

// FormatOrderCode 渲染人类可读订单号。
func FormatOrderCode(n int64) string {
	return fmt.Sprintf("ORD-%08d", n)
}
