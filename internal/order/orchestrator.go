package order

import (
	"context"
	"fmt"
	"log"

	"shop_backend/internal/coupon"
	"shop_backend/internal/model"
	"shop_backend/internal/outbox"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ItemCommand 请求里的一行条目。
type ItemCommand struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// CreateOrderCommand 下单请求。
type CreateOrderCommand struct {
	CustomerID    uint          `json:"customer_id"`
	Items         []ItemCommand `json:"items"`
	FreightType   string        `json:"freight_type"`
	PaymentMethod string        `json:"payment_method"`
	Installments  int           `json:"installments"`
	CouponCode    string        `json:"coupon_code"`
}

// Orchestrator 驱动下单的「采集 → 校验 → 提交」序列：
// 只读采集买家 / 商品 / 运费，占用优惠券名额（唯一的采集期副作用），
// 组装聚合并校验，最后在一个本地事务里落库订单与 outbox 事件行。
type Orchestrator struct {
	db        *gorm.DB
	customers CustomerLookup
	products  ProductLookup
	freight   FreightCalculator
	coupons   *coupon.Allocator
	seq       *Sequence
}

func NewOrchestrator(db *gorm.DB, customers CustomerLookup, products ProductLookup, freight FreightCalculator, coupons *coupon.Allocator, seq *Sequence) *Orchestrator {
	return &Orchestrator{
		db:        db,
		customers: customers,
		products:  products,
		freight:   freight,
		coupons:   coupons,
		seq:       seq,
	}
}

// CreateOrder 创建订单。
// 错误语义：ErrCustomerNotFound / coupon.* / ErrProductsUnresolved /
// ValidationErrors 是业务拒绝，按值返回；ErrTransaction 是提交本身失败，
// 业务校验已全部通过，调用方可直接重试。
func (o *Orchestrator) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*model.Order, error) {
	// 1. 买家解析：不存在即终止，后面什么都不做。
	profile, err := o.customers.Find(ctx, cmd.CustomerID)
	if err != nil {
		return nil, err
	}

	// 2. 按 SKU 批量解析商品。解析结果数量与请求条目数不完全一致
	//（含一个都解析不到）整单拒绝，这一步不允许部分成立。
	if len(cmd.Items) == 0 {
		return nil, ValidationErrors{{Field: "items", Message: "must not be empty"}}
	}
	skus := make([]string, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		skus = append(skus, it.SKU)
	}
	details, err := o.products.FindBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}
	if len(details) != len(cmd.Items) {
		return nil, ErrProductsUnresolved
	}
	bySKU := make(map[string]ProductDetails, len(details))
	for _, d := range details {
		bySKU[d.SKU] = d
	}

	// 3. 用累计尺寸与买家邮编询运费。
	freightItems := make([]FreightItem, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		d := bySKU[it.SKU]
		freightItems = append(freightItems, FreightItem{
			Weight:   d.Weight,
			Width:    d.Width,
			Height:   d.Height,
			Length:   d.Length,
			Quantity: it.Quantity,
		})
	}
	quote, err := o.freight.Calculate(ctx, FreightRequest{
		PostalCode: profile.PostalCode,
		Type:       cmd.FreightType,
		Items:      freightItems,
	})
	if err != nil {
		return nil, fmt.Errorf("freight calculation: %w", err)
	}

	// 4. 组装配送与支付。
	delivery := model.OrderDelivery{
		FreightType:  quote.Type,
		Price:        quote.Price,
		DeadlineDays: quote.DeadlineDays,
		Street:       profile.Street,
		Number:       profile.Number,
		Complement:   profile.Complement,
		City:         profile.City,
		State:        profile.State,
		PostalCode:   profile.PostalCode,
	}
	payment := model.OrderPayment{
		Method:       cmd.PaymentMethod,
		Installments: cmd.Installments,
	}

	// 5. 取号：全局原子计数器，无进程内缓存。
	n, err := o.seq.Next(ctx)
	if err != nil {
		return nil, err
	}

	// 6. 组装聚合：条目带快照价，总额在条目与配送都就位后才计算。
	ord := &model.Order{
		OrderID:    uuid.New().String(),
		Code:       FormatOrderCode(n),
		CustomerID: profile.ID,
		Delivery:   delivery,
		Payment:    payment,
		Status:     model.OrderStatusPending,
		Version:    1,
	}
	for _, it := range cmd.Items {
		d := bySKU[it.SKU]
		ord.Items = append(ord.Items, model.OrderItem{
			ProductID: d.ProductID,
			SKU:       d.SKU,
			Quantity:  it.Quantity,
			Price:     d.Price,
		})
	}
	var subtotal int64
	for _, it := range ord.Items {
		subtotal += it.Subtotal()
	}
	ord.TotalAmount = subtotal + delivery.Price

	// 7. 优惠券：先占名额再提交订单，不是尽力而为；
	// 停用 / 过期 / 名额耗尽任何一种失败都整单拒绝。
	var claim coupon.Claim
	if cmd.CouponCode != "" {
		claim, err = o.coupons.Redeem(ctx, cmd.CouponCode)
		if err != nil {
			return nil, err
		}
		ord.CouponCode = claim.Code
		ord.CouponPercentage = claim.Percentage
		ord.TotalAmount -= ord.TotalAmount * claim.Percentage / 100
	}

	// 8. 结构校验，违规全部累积成一份报告。
	// 校验失败必须退还第 7 步占用的名额：被拒的订单不得永久吃掉名额。
	if verrs := validateOrder(ord); len(verrs) > 0 {
		if claim.Limited {
			if relErr := o.coupons.Release(ctx, claim.CouponID); relErr != nil {
				log.Printf("release coupon slot coupon_id=%d: %v", claim.CouponID, relErr)
			}
		}
		return nil, verrs
	}

	// 9-10. 单个本地事务：订单 + 条目 + 配送 + 支付 + outbox 事件行，
	// 任何一步失败整体回滚。提交失败时第 7 步的名额不自动退还，名额可能永久丢失。
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ord).Error; err != nil {
			return err
		}
		ev, err := outbox.OrderCreated(ord)
		if err != nil {
			return err
		}
		return outbox.Stage(tx, ev)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransaction, err)
	}

	return ord, nil
}
