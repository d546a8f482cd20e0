package order

import (
	"context"
	"errors"
	"fmt"

	"shop_backend/internal/model"

	"gorm.io/gorm"
)

// CustomerProfile 下单需要的买家只读视图。
type CustomerProfile struct {
	ID         uint
	Street     string
	Number     string
	Complement string
	City       string
	State      string
	PostalCode string
}

// ProductDetails SKU 解析出的价格与体积重量快照。
type ProductDetails struct {
	ProductID uint
	SKU       string
	Price     int64 // 分
	Weight    int64 // 克
	Width     int64 // 毫米
	Height    int64
	Length    int64
}

// FreightItem 运费计算用的单件尺寸。
type FreightItem struct {
	Weight   int64
	Width    int64
	Height   int64
	Length   int64
	Quantity int
}

// FreightRequest 一次运费询价。
type FreightRequest struct {
	PostalCode string
	Type       string // EXPRESS / STANDARD
	Items      []FreightItem
}

// FreightQuote 运费询价结果。
type FreightQuote struct {
	Type         string
	Price        int64 // 分
	DeadlineDays int
}

// 编排器消费的协作方契约，全部只读。
type (
	CustomerLookup interface {
		Find(ctx context.Context, id uint) (CustomerProfile, error)
	}
	ProductLookup interface {
		// FindBySKUs 按 SKU 批量解析；解析不到的 SKU 不在返回集里，
		// 由调用方比对数量决定整单拒绝。
		FindBySKUs(ctx context.Context, skus []string) ([]ProductDetails, error)
	}
	FreightCalculator interface {
		Calculate(ctx context.Context, req FreightRequest) (FreightQuote, error)
	}
)

// CustomerStore CustomerLookup 的数据库实现。
type CustomerStore struct {
	db *gorm.DB
}

func NewCustomerStore(db *gorm.DB) *CustomerStore {
	return &CustomerStore{db: db}
}

func (s *CustomerStore) Find(ctx context.Context, id uint) (CustomerProfile, error) {
	var c model.Customer
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CustomerProfile{}, ErrCustomerNotFound
		}
		return CustomerProfile{}, fmt.Errorf("customer lookup: %w", err)
	}
	return CustomerProfile{
		ID:         c.ID,
		Street:     c.Street,
		Number:     c.Number,
		Complement: c.Complement,
		City:       c.City,
		State:      c.State,
		PostalCode: c.PostalCode,
	}, nil
}

// ProductStore ProductLookup 的数据库实现。
type ProductStore struct {
	db *gorm.DB
}

func NewProductStore(db *gorm.DB) *ProductStore {
	return &ProductStore{db: db}
}

func (s *ProductStore) FindBySKUs(ctx context.Context, skus []string) ([]ProductDetails, error) {
	var products []model.Product
	if err := s.db.WithContext(ctx).Where("sku IN ?", skus).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("product lookup: %w", err)
	}
	out := make([]ProductDetails, 0, len(products))
	for _, p := range products {
		out = append(out, ProductDetails{
			ProductID: p.ID,
			SKU:       p.SKU,
			Price:     p.Price,
			Weight:    p.Weight,
			Width:     p.Width,
			Height:    p.Height,
			Length:    p.Length,
		})
	}
	return out, nil
}

// FlatRateFreight 内置运费实现：基础费 + 按重量计费，EXPRESS 加倍提速。
// 真实部署里可换成外部承运商询价客户端，编排器只依赖接口。
type FlatRateFreight struct{}

func (FlatRateFreight) Calculate(_ context.Context, req FreightRequest) (FreightQuote, error) {
	var weight int64
	for _, it := range req.Items {
		weight += it.Weight * int64(it.Quantity)
	}

	// 基础费 3 元 + 每 100g 5 分。
	price := int64(300) + weight/100*5
	deadline := 5
	if req.Type == "EXPRESS" {
		price *= 2
		deadline = 1
	}
	return FreightQuote{Type: req.Type, Price: price, DeadlineDays: deadline}, nil
}
