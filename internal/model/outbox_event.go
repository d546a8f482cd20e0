package model

import "time"

// OutboxEvent 事务内落库的待发布事件（transactional outbox）。
// 只追加不更新；relay 确认发布到 Kafka 后删除。
// 自增主键即插入顺序，relay 按主键升序扫描保证发布顺序。
type OutboxEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EventID       string    `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	AggregateID   string    `gorm:"size:64;not null;index" json:"aggregate_id"` // Kafka 分区 key
	AggregateName string    `gorm:"size:64;not null" json:"aggregate_name"`
	EventType     string    `gorm:"size:64;not null" json:"event_type"`
	Payload       []byte    `gorm:"not null" json:"payload"` // JSON 序列化的事件数据
	OccurredOn    time.Time `gorm:"not null" json:"occurred_on"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }
