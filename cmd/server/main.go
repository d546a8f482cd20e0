package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"shop_backend/internal/config"
	"shop_backend/internal/coupon"
	"shop_backend/internal/dedup"
	"shop_backend/internal/model"
	"shop_backend/internal/order"
	"shop_backend/internal/outbox"
	"shop_backend/internal/queue"
	"shop_backend/internal/router"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 1. 连接 SQLite，自动建表
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := db.AutoMigrate(
		&model.Category{},
		&model.Product{},
		&model.Customer{},
		&model.Coupon{},
		&model.CouponSlot{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderDelivery{},
		&model.OrderPayment{},
		&model.OutboxEvent{},
		&model.Sequence{},
	); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	// 预建订单号计数器，避免首单并发建行冲突。
	db.Where(model.Sequence{Name: "order_code"}).FirstOrCreate(&model.Sequence{Name: "order_code"})

	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

	producer := queue.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. outbox relay：轮询事件表转发 Kafka
	relay := outbox.NewRelay(db, producer, cfg.OrderTopic, cfg.RelayBatchSize, cfg.RelayPoll)
	go relay.Run(ctx)

	// 3. 消费者：下游动作（重建索引 / 预留库存）在这里挂接
	guard := dedup.NewService(dedup.NewRedisStore(rdb), cfg.DedupTTL)
	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, queue.ConsumerConfig{
		Topic:            cfg.OrderTopic,
		DeadLetterTopic:  cfg.DeadLetterTopic,
		InvalidTopic:     cfg.InvalidTopic,
		StalenessHorizon: cfg.StalenessHorizon,
		RetryBaseDelay:   cfg.RetryBaseDelay,
		RetryMultiplier:  cfg.RetryMultiplier,
		RetryMaxAttempts: cfg.RetryMaxAttempts,
	}, producer, guard, queue.Handlers{
		OrderCreated: func(_ context.Context, data queue.OrderCreatedData) error {
			log.Printf("order created: code=%s customer=%d total=%d items=%d",
				data.OrderCode, data.CustomerID, data.TotalAmount, len(data.Items))
			return nil
		},
	})
	defer consumer.Close()
	go consumer.Run(ctx)

	// 4. 死信回灌：把死信发回原主题再走一轮重试
	requeuer := queue.NewRequeuer(cfg.KafkaBrokers, cfg.RequeuerGroup,
		cfg.DeadLetterTopic, cfg.OrderTopic, cfg.InvalidTopic, cfg.RequeueMaxCycles).
		WithPublisher(producer)
	defer requeuer.Close()
	go requeuer.Run(ctx)

	// 5. HTTP
	alloc := coupon.NewAllocator(db)
	orch := order.NewOrchestrator(db,
		order.NewCustomerStore(db),
		order.NewProductStore(db),
		order.FlatRateFreight{},
		alloc,
		order.NewSequence(db),
	)

	r := gin.Default()
	router.Setup(r, db, rdb, orch, alloc, cfg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http serve: %v", err)
		}
	}()
	log.Printf("listening on %s", cfg.HTTPAddr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
