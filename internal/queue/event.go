package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind 事件类型的封闭集合。消费端对未知类型记日志后跳过，绝不中断消费循环。
type EventKind string

const (
	KindOrderCreated    EventKind = "ORDER_CREATED"
	KindProductCreated  EventKind = "PRODUCT_CREATED"
	KindCategoryCreated EventKind = "CATEGORY_CREATED"
)

// ParseEventKind 校验事件类型是否在已知集合内。
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case KindOrderCreated, KindProductCreated, KindCategoryCreated:
		return k, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", s)
	}
}

// Envelope 是进出 Kafka 的事件信封。Data 按 EventType 再解一层。
type Envelope struct {
	EventID       string          `json:"event_id"`
	AggregateID   string          `json:"aggregate_id"` // 分区 key，保证同聚合有序
	AggregateName string          `json:"aggregate_name"`
	EventType     string          `json:"event_type"`
	OccurredOn    time.Time       `json:"occurred_on"`
	Data          json.RawMessage `json:"data"`
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (e Envelope) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.AggregateID == "" {
		return fmt.Errorf("aggregate_id is required")
	}
	if e.AggregateName == "" {
		return fmt.Errorf("aggregate_name is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.OccurredOn.IsZero() {
		return fmt.Errorf("occurred_on is required")
	}
	return nil
}

// OrderCreatedItem 事件里的订单条目快照。
type OrderCreatedItem struct {
	ProductID uint   `json:"product_id"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

// OrderCreatedData 是 ORDER_CREATED 事件的载荷。
type OrderCreatedData struct {
	OrderID          string             `json:"order_id"`
	OrderCode        string             `json:"order_code"`
	CustomerID       uint               `json:"customer_id"`
	Items            []OrderCreatedItem `json:"items"`
	TotalAmount      int64              `json:"total_amount"`
	CouponCode       string             `json:"coupon_code,omitempty"`
	CouponPercentage int64              `json:"coupon_percentage,omitempty"`
}
