package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"shop_backend/internal/model"
	"shop_backend/internal/queue"

	"github.com/segmentio/kafka-go"
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
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakePublisher 记录发布的消息，可配置失败。
type fakePublisher struct {
	published []kafka.Message
	fail      bool
}

func (f *fakePublisher) Publish(_ context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, kafka.Message{Topic: topic, Key: key, Value: value, Headers: headers})
	return nil
}

func stageEvent(t *testing.T, db *gorm.DB, aggregateID string, occurred time.Time) *model.OutboxEvent {
	t.Helper()
	ev := &model.OutboxEvent{
		EventID:       fmt.Sprintf("ev-%s", aggregateID),
		AggregateID:   aggregateID,
		AggregateName: "order",
		EventType:     string(queue.KindOrderCreated),
		Payload:       []byte(`{"order_id":"` + aggregateID + `"}`),
		OccurredOn:    occurred,
	}
	if err := Stage(db, ev); err != nil {
		t.Fatalf("stage: %v", err)
	}
	return ev
}

func TestStageRollsBackWithTransaction(t *testing.T) {
	db := newTestDB(t)

	// 事务回滚时事件行必须一并消失（write-ahead-of-publish）。
	err := db.Transaction(func(tx *gorm.DB) error {
		stageEvent(t, tx, "agg-1", time.Now())
		return errors.New("force rollback")
	})
	if err == nil {
		t.Fatalf("expected rollback error")
	}

	var n int64
	db.Model(&model.OutboxEvent{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected no events after rollback, got %d", n)
	}
}

func TestDrainPublishesInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	now := time.Now().UTC()

	stageEvent(t, db, "agg-1", now)
	stageEvent(t, db, "agg-2", now)
	stageEvent(t, db, "agg-3", now)

	pub := &fakePublisher{}
	r := NewRelay(db, pub, "orders", 16, time.Millisecond)

	n, err := r.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 3 || len(pub.published) != 3 {
		t.Fatalf("expected 3 published, got n=%d published=%d", n, len(pub.published))
	}

	for i, want := range []string{"agg-1", "agg-2", "agg-3"} {
		m := pub.published[i]
		if string(m.Key) != want {
			t.Fatalf("order violated at %d: key=%s", i, m.Key)
		}
		var env queue.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.AggregateID != want || env.EventType != string(queue.KindOrderCreated) {
			t.Fatalf("unexpected envelope: %+v", env)
		}
	}

	// 发布确认后事件行删除。
	var left int64
	db.Model(&model.OutboxEvent{}).Count(&left)
	if left != 0 {
		t.Fatalf("expected outbox empty, got %d", left)
	}
}

func TestDrainKeepsRowsOnPublishFailure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	stageEvent(t, db, "agg-1", time.Now())
	stageEvent(t, db, "agg-2", time.Now())

	pub := &fakePublisher{fail: true}
	r := NewRelay(db, pub, "orders", 16, time.Millisecond)

	if _, err := r.Drain(ctx); err == nil {
		t.Fatalf("expected drain error")
	}

	// 失败不删行，留待下一轮重试（at-least-once）。
	var left int64
	db.Model(&model.OutboxEvent{}).Count(&left)
	if left != 2 {
		t.Fatalf("expected 2 rows kept, got %d", left)
	}

	// 恢复后一轮排空。
	pub.fail = false
	if _, err := r.Drain(ctx); err != nil {
		t.Fatalf("drain after recovery: %v", err)
	}
	db.Model(&model.OutboxEvent{}).Count(&left)
	if left != 0 {
		t.Fatalf("expected outbox empty after recovery, got %d", left)
	}
}

func TestOrderCreatedEvent(t *testing.T) {
	o := &model.Order{
		OrderID:    "uuid-1",
		Code:       "ORD-00000001",
		CustomerID: 7,
		Items: []model.OrderItem{
			{ProductID: 1, SKU: "ABC", Quantity: 2, Price: 1000},
		},
		TotalAmount:      2250,
		CouponCode:       "SAVE10",
		CouponPercentage: 10,
	}

	ev, err := OrderCreated(o)
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	if ev.AggregateID != "uuid-1" || ev.AggregateName != "order" {
		t.Fatalf("unexpected aggregate fields: %+v", ev)
	}
	if ev.EventType != string(queue.KindOrderCreated) {
		t.Fatalf("unexpected type %s", ev.EventType)
	}

	var data queue.OrderCreatedData
	if err := json.Unmarshal(ev.Payload, &data); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if data.OrderCode != "ORD-00000001" || data.TotalAmount != 2250 || data.CouponPercentage != 10 {
		t.Fatalf("unexpected payload: %+v", data)
	}
	if len(data.Items) != 1 || data.Items[0].SKU != "ABC" {
		t.Fatalf("unexpected items: %+v", data.Items)
	}
}
