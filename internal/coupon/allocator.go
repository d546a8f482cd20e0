package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop_backend/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 券码不存在。
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive 券已停用。
	ErrInactive = errors.New("coupon inactive")
	// ErrExpired 券已过期（到期时刻含在内）。
	ErrExpired = errors.New("coupon expired")
	// ErrCapacityExhausted 限量券名额已抢完。
	ErrCapacityExhausted = errors.New("coupon capacity exhausted")
)

// Claim 一次成功兑换的结果。Limited 为 true 时表示消耗了一行名额，
// 调用方校验失败后必须 Release 一次（且只能一次）退还名额。
type Claim struct {
	CouponID   uint
	Code       string
	Percentage int64
	Limited    bool
}

// Allocator 限量券名额的准入控制。
// 容量建模为 max_uses 行匿名名额：兑换 = 原子删除任意一行，
// 排他性完全依赖存储层的行级原子性，进程内不加锁。
type Allocator struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAllocator(db *gorm.DB) *Allocator {
	return &Allocator{db: db, now: time.Now}
}

// Redeem 校验券可用性并占用一个名额。
// 失败路径：券不存在 / 停用 / 过期在尝试占名额之前就拒绝；
// 名额删不到（RowsAffected == 0）返回 ErrCapacityExhausted。
func (a *Allocator) Redeem(ctx context.Context, code string) (Claim, error) {
	var c model.Coupon
	if err := a.db.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Claim{}, ErrNotFound
		}
		return Claim{}, fmt.Errorf("coupon lookup: %w", err)
	}

	if !c.Active {
		return Claim{}, ErrInactive
	}
	// 过期判定为闭区间：恰好等于 ExpiresAt 也算过期。
	if !a.now().Before(c.ExpiresAt) {
		return Claim{}, ErrExpired
	}

	claim := Claim{CouponID: c.ID, Code: c.Code, Percentage: c.Percentage}
	if c.Type == model.CouponUnlimited {
		return claim, nil
	}

	// 单条 DELETE 带子查询，挑任意一行名额原子删除。
	// 并发下由 SQLite 的写串行化保证同一行只会被删成功一次。
	sub := a.db.Model(&model.CouponSlot{}).
		Select("id").
		Where("coupon_id = ?", c.ID).
		Limit(1)
	res := a.db.WithContext(ctx).Where("id IN (?)", sub).Delete(&model.CouponSlot{})
	if res.Error != nil {
		return Claim{}, fmt.Errorf("claim slot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return Claim{}, ErrCapacityExhausted
	}

	claim.Limited = true
	return claim, nil
}

// Release 退还一个名额（校验回滚时的补偿动作）。
// 实现上就是补插一行；重复调用会超发名额，调用方每次成功占用最多退一次。
func (a *Allocator) Release(ctx context.Context, couponID uint) error {
	slot := model.CouponSlot{CouponID: couponID}
	if err := a.db.WithContext(ctx).Create(&slot).Error; err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// Provision 创建券；LIMITED 券在同一事务里生成 MaxUses 行名额。
func (a *Allocator) Provision(ctx context.Context, c *model.Coupon) error {
	if c.Type == model.CouponLimited && c.MaxUses <= 0 {
		return fmt.Errorf("limited coupon requires max_uses > 0")
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if c.Type != model.CouponLimited {
			return nil
		}
		slots := make([]model.CouponSlot, c.MaxUses)
		for i := range slots {
			slots[i] = model.CouponSlot{CouponID: c.ID}
		}
		return tx.Create(&slots).Error
	})
}

// Remaining 查询剩余名额数，供管理接口与测试观测。
func (a *Allocator) Remaining(ctx context.Context, couponID uint) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).
		Model(&model.CouponSlot{}).
		Where("coupon_id = ?", couponID).
		Count(&n).Error
	return n, err
}
