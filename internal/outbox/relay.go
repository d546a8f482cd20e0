package outbox

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"shop_backend/internal/model"
	"shop_backend/internal/queue"

	"gorm.io/gorm"
)

// Relay 轮询 outbox 表，把未发布的事件转发到 Kafka。
// 语义：发布成功后才删除事件行，失败则保留等待下一轮——at-least-once，
// 下游必然收到重复，由消费侧幂等防护吸收。
// 按自增主键升序扫描即插入顺序；分区 key 用聚合 ID，同聚合的事件保持有序。
type Relay struct {
	db    *gorm.DB
	pub   queue.Publisher
	topic string

	batchSize    int
	pollInterval time.Duration
}

func NewRelay(db *gorm.DB, pub queue.Publisher, topic string, batchSize int, pollInterval time.Duration) *Relay {
	return &Relay{
		db:           db,
		pub:          pub,
		topic:        topic,
		batchSize:    batchSize,
		pollInterval: pollInterval,
	}
}

func (r *Relay) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := r.Drain(ctx)
		if err != nil {
			log.Printf("relay drain: %v", err)
			r.wait(ctx, 300*time.Millisecond)
			continue
		}
		if n == 0 {
			r.wait(ctx, r.pollInterval)
		}
	}
}

// Drain 处理一批待发布事件，返回本轮处理条数。
// 单条失败即中断本轮，留下的行连同后续行下一轮重试，不打乱插入顺序。
func (r *Relay) Drain(ctx context.Context) (int, error) {
	var rows []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Limit(r.batchSize).
		Find(&rows).Error
	if err != nil {
		return 0, err
	}

	for i, ev := range rows {
		if err := r.publishOne(ctx, ev); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}

func (r *Relay) publishOne(ctx context.Context, ev model.OutboxEvent) error {
	env := queue.Envelope{
		EventID:       ev.EventID,
		AggregateID:   ev.AggregateID,
		AggregateName: ev.AggregateName,
		EventType:     ev.EventType,
		OccurredOn:    ev.OccurredOn,
		Data:          json.RawMessage(ev.Payload),
	}
	b, err := json.Marshal(env)
	if err != nil {
		// 序列化不了的行直接删掉，否则会永久阻塞后续事件。
		log.Printf("relay drop event id=%s: %v", ev.EventID, err)
		return r.db.WithContext(ctx).Delete(&model.OutboxEvent{}, ev.ID).Error
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.pub.Publish(pubCtx, r.topic, []byte(ev.AggregateID), b); err != nil {
		return err
	}
	// 发布确认后才删除；这里崩溃只会导致重复发布，不会丢事件。
	return r.db.WithContext(ctx).Delete(&model.OutboxEvent{}, ev.ID).Error
}

func (r *Relay) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
