package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"shop_backend/internal/model"
	"shop_backend/internal/queue"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stage 把事件行写进 outbox 表。tx 传业务事务句柄时，
// 事件与业务变更同一事务提交或一起回滚（write-ahead-of-publish）。
func Stage(tx *gorm.DB, ev *model.OutboxEvent) error {
	if err := tx.Create(ev).Error; err != nil {
		return fmt.Errorf("stage outbox event: %w", err)
	}
	return nil
}

// OrderCreated 由订单聚合构造 ORDER_CREATED 事件行。
func OrderCreated(o *model.Order) (*model.OutboxEvent, error) {
	items := make([]queue.OrderCreatedItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, queue.OrderCreatedItem{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	data := queue.OrderCreatedData{
		OrderID:          o.OrderID,
		OrderCode:        o.Code,
		CustomerID:       o.CustomerID,
		Items:            items,
		TotalAmount:      o.TotalAmount,
		CouponCode:       o.CouponCode,
		CouponPercentage: o.CouponPercentage,
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal order created payload: %w", err)
	}
	return &model.OutboxEvent{
		EventID:       uuid.New().String(),
		AggregateID:   o.OrderID,
		AggregateName: "order",
		EventType:     string(queue.KindOrderCreated),
		Payload:       payload,
		OccurredOn:    time.Now().UTC(),
	}, nil
}
