package order

import (
	"errors"
	"fmt"
	"strings"

	"shop_backend/internal/model"
)

var (
	// ErrCustomerNotFound 买家不存在，终止性错误，不做任何后续工作。
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrProductsUnresolved 有请求条目解析不到商品明细，整单拒绝（数据完备性前置条件）。
	ErrProductsUnresolved = errors.New("some requested products could not be resolved")
	// ErrTransaction 本地原子提交失败。业务校验已全部通过，
	// 属于基础设施故障而非业务拒绝，调用方可以不重跑业务校验直接重试。
	ErrTransaction = errors.New("order transaction failed")
)

// FieldError 单条结构校验违规。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors 聚合的校验违规清单，作为值返回给调用方渲染，不是异常。
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationErrors) add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

// validateOrder 对配送、支付、订单做结构校验，把全部违规累积成一份报告。
func validateOrder(o *model.Order) ValidationErrors {
	var v ValidationErrors

	if o.CustomerID == 0 {
		v.add("customer_id", "is required")
	}
	if o.Code == "" {
		v.add("code", "is required")
	}
	if len(o.Items) == 0 {
		v.add("items", "must not be empty")
	}
	for i, it := range o.Items {
		if it.Quantity <= 0 {
			v.add(fmt.Sprintf("items[%d].quantity", i), "must be > 0")
		}
		if it.Price <= 0 {
			v.add(fmt.Sprintf("items[%d].price", i), "must be > 0")
		}
		if it.SKU == "" {
			v.add(fmt.Sprintf("items[%d].sku", i), "is required")
		}
	}

	if o.Delivery.Street == "" {
		v.add("delivery.street", "is required")
	}
	if o.Delivery.City == "" {
		v.add("delivery.city", "is required")
	}
	if o.Delivery.PostalCode == "" {
		v.add("delivery.postal_code", "is required")
	}
	if o.Delivery.Price < 0 {
		v.add("delivery.price", "must be >= 0")
	}

	if o.Payment.Method == "" {
		v.add("payment.method", "is required")
	}
	if o.Payment.Installments < 1 {
		v.add("payment.installments", "must be >= 1")
	}

	if o.CouponPercentage < 0 || o.CouponPercentage > 100 {
		v.add("coupon_percentage", "must be between 0 and 100")
	}
	if o.TotalAmount < 0 {
		v.add("total_amount", "must be >= 0")
	}

	return v
}
