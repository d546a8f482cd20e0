package coupon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"shop_backend/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// SQLite 单写者：并发走同一个连接，写操作天然串行。
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.Coupon{}, &model.CouponSlot{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestAllocator(t *testing.T, db *gorm.DB) *Allocator {
	t.Helper()
	a := NewAllocator(db)
	a.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

func provisionLimited(t *testing.T, a *Allocator, code string, maxUses int) *model.Coupon {
	t.Helper()
	c := &model.Coupon{
		Code:       code,
		Percentage: 10,
		Type:       model.CouponLimited,
		MaxUses:    maxUses,
		Active:     true,
		ExpiresAt:  time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := a.Provision(context.Background(), c); err != nil {
		t.Fatalf("provision: %v", err)
	}
	return c
}

func TestRedeemLimited(t *testing.T) {
	ctx := context.Background()
	a := newTestAllocator(t, newTestDB(t))
	c := provisionLimited(t, a, "SAVE10", 1)

	claim, err := a.Redeem(ctx, "SAVE10")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !claim.Limited || claim.Percentage != 10 || claim.CouponID != c.ID {
		t.Fatalf("unexpected claim: %+v", claim)
	}

	remaining, err := a.Remaining(ctx, c.ID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 slots, got %d", remaining)
	}

	// 名额耗尽后的兑换必须拿到容量耗尽错误。
	_, err = a.Redeem(ctx, "SAVE10")
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("expected ErrCapacityExhausted, got %v", err)
	}
}

func TestRedeemUnlimited(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	a := newTestAllocator(t, db)
	c := &model.Coupon{
		Code:       "FOREVER5",
		Percentage: 5,
		Type:       model.CouponUnlimited,
		Active:     true,
		ExpiresAt:  time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := a.Provision(ctx, c); err != nil {
		t.Fatalf("provision: %v", err)
	}

	// 不限量券没有名额行，重复兑换永不耗尽。
	for i := 0; i < 3; i++ {
		claim, err := a.Redeem(ctx, "FOREVER5")
		if err != nil {
			t.Fatalf("redeem %d: %v", i, err)
		}
		if claim.Limited {
			t.Fatalf("unlimited claim must not hold a slot")
		}
	}
	remaining, _ := a.Remaining(ctx, c.ID)
	if remaining != 0 {
		t.Fatalf("unlimited coupon must have no slot rows, got %d", remaining)
	}
}

func TestRedeemRejections(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	a := newTestAllocator(t, db)

	if _, err := a.Redeem(ctx, "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	inactive := &model.Coupon{
		Code: "OFF", Percentage: 10, Type: model.CouponLimited, MaxUses: 1,
		Active: false, ExpiresAt: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := a.Provision(ctx, inactive); err != nil {
		t.Fatalf("provision: %v", err)
	}
	// 停用标记必须原样落库，不能被列默认值顶掉。
	var stored model.Coupon
	if err := db.First(&stored, inactive.ID).Error; err != nil {
		t.Fatalf("reload coupon: %v", err)
	}
	if stored.Active {
		t.Fatalf("inactive coupon persisted as active")
	}
	if _, err := a.Redeem(ctx, "OFF"); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}

	// 到期判定为闭区间：恰好等于 ExpiresAt 也算过期。
	atExpiry := &model.Coupon{
		Code: "EDGE", Percentage: 10, Type: model.CouponLimited, MaxUses: 1,
		Active: true, ExpiresAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := a.Provision(ctx, atExpiry); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if _, err := a.Redeem(ctx, "EDGE"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at exact expiry instant, got %v", err)
	}

	// 拒绝发生在占名额之前，名额应原封不动。
	remaining, _ := a.Remaining(ctx, atExpiry.ID)
	if remaining != 1 {
		t.Fatalf("rejected redeem must not consume slots, remaining=%d", remaining)
	}
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	a := newTestAllocator(t, newTestDB(t))
	c := provisionLimited(t, a, "SAVE10", 1)

	claim, err := a.Redeem(ctx, "SAVE10")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := a.Release(ctx, claim.CouponID); err != nil {
		t.Fatalf("release: %v", err)
	}

	remaining, _ := a.Remaining(ctx, c.ID)
	if remaining != 1 {
		t.Fatalf("expected slot back after release, remaining=%d", remaining)
	}
	if _, err := a.Redeem(ctx, "SAVE10"); err != nil {
		t.Fatalf("redeem after release: %v", err)
	}
}

// 核心属性：maxUses=N 的限量券在任意并发下成功兑换数不超过 N，
// 超出的请求全部拿到容量耗尽。
func TestConcurrentRedeemNeverOversells(t *testing.T) {
	const maxUses = 5
	const attempts = 60

	ctx := context.Background()
	a := newTestAllocator(t, newTestDB(t))
	c := provisionLimited(t, a, "HOT", maxUses)

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = a.Redeem(ctx, "HOT")
		}(i)
	}
	wg.Wait()

	success, exhausted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrCapacityExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != maxUses {
		t.Fatalf("expected exactly %d successful claims, got %d", maxUses, success)
	}
	if exhausted != attempts-maxUses {
		t.Fatalf("expected %d exhausted, got %d", attempts-maxUses, exhausted)
	}

	remaining, _ := a.Remaining(ctx, c.ID)
	if remaining != 0 {
		t.Fatalf("expected 0 slots after full redemption, got %d", remaining)
	}
}
