package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// DedupGuard 消费侧幂等防护（last-write-wins，尽力而为）。
// 检查与落记录分离：只有处理成功的事件才 MarkProcessed，
// 进死信的消息不留记录，回流后重新获得完整重试周期。
type DedupGuard interface {
	IsDuplicate(ctx context.Context, aggregateName, payloadID string, occurredOn time.Time) (bool, error)
	MarkProcessed(ctx context.Context, aggregateName, payloadID string, occurredOn time.Time) error
}

// Handlers 按事件类型分发的处理函数。为 nil 的类型直接确认跳过。
type Handlers struct {
	OrderCreated    func(ctx context.Context, data OrderCreatedData) error
	ProductCreated  func(ctx context.Context, env Envelope) error
	CategoryCreated func(ctx context.Context, env Envelope) error
}

// ConsumerConfig 重试 / 死信 / 过期丢弃的运行参数。
type ConsumerConfig struct {
	Topic           string
	DeadLetterTopic string
	// InvalidTopic 承接过期与无法解析的消息，不参与正常重试循环。
	InvalidTopic     string
	StalenessHorizon time.Duration
	RetryBaseDelay   time.Duration
	RetryMultiplier  int
	RetryMaxAttempts int
}

// 消息的终态，process 只有到达终态才返回 nil（之后才提交 offset）。
type outcome int

const (
	outcomeHandled outcome = iota
	outcomeStale
	outcomeDuplicate
	outcomeSkipped
	outcomeDeadLettered
	outcomeInvalid
)

// Consumer 订阅订单事件主题，按分区顺序处理：
// RECEIVED → (过期检查) → [失效信 | 处理] → ACK | 重试 | 死信。
// offset 只在消息到达终态后提交，对 handler 是 at-least-once 语义。
type Consumer struct {
	r        *kafka.Reader
	pub      Publisher
	dedup    DedupGuard
	handlers Handlers
	cfg      ConsumerConfig

	now   func() time.Time
	sleep func(time.Duration)
}

func NewConsumer(brokers []string, groupID string, cfg ConsumerConfig, pub Publisher, dedup DedupGuard, handlers Handlers) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    cfg.Topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		pub:      pub,
		dedup:    dedup,
		handlers: handlers,
		cfg:      cfg,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}

		if _, err := c.process(ctx, m); err != nil {
			// 未到终态（如死信发布失败）：不提交 offset，等待重投。
			log.Printf("consumer process offset=%d: %v", m.Offset, err)
			c.sleep(300 * time.Millisecond)
			continue
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			log.Printf("consumer commit offset=%d: %v", m.Offset, err)
		}
	}
}

// process 把一条消息推进到终态。返回 error 表示终态未达成，调用方不得提交 offset。
func (c *Consumer) process(ctx context.Context, m kafka.Message) (outcome, error) {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Printf("consumer unmarshal: %v", err)
		return c.quarantine(ctx, m, outcomeInvalid)
	}
	if err := env.Validate(); err != nil {
		log.Printf("consumer invalid envelope: %v", err)
		return c.quarantine(ctx, m, outcomeInvalid)
	}

	// 过期检查：超出时效的事件直接进失效信并确认，永不进入正常重试。
	if c.now().Sub(env.OccurredOn) > c.cfg.StalenessHorizon {
		log.Printf("consumer stale event id=%s occurred_on=%s", env.EventID, env.OccurredOn.Format(time.RFC3339))
		return c.quarantine(ctx, m, outcomeStale)
	}

	kind, err := ParseEventKind(env.EventType)
	if err != nil {
		// 封闭集合外的类型：记日志后跳过，不让单条消息拖垮消费循环。
		log.Printf("consumer skip: %v", err)
		return outcomeSkipped, nil
	}

	dup, err := c.dedup.IsDuplicate(ctx, env.AggregateName, env.AggregateID, env.OccurredOn)
	if err != nil {
		// 防护不可用时放行（尽力而为），由 handler 的幂等性兜底。
		log.Printf("consumer dedup check id=%s: %v", env.EventID, err)
	} else if dup {
		return outcomeDuplicate, nil
	}

	// 有界指数退避重试，重试耗尽进死信。
	delay := c.cfg.RetryBaseDelay
	for attempt := 1; ; attempt++ {
		err := c.dispatch(ctx, kind, env)
		if err == nil {
			// 防重记录只在处理成功后落下。
			if mErr := c.dedup.MarkProcessed(ctx, env.AggregateName, env.AggregateID, env.OccurredOn); mErr != nil {
				log.Printf("consumer dedup mark id=%s: %v", env.EventID, mErr)
			}
			return outcomeHandled, nil
		}
		if attempt >= c.cfg.RetryMaxAttempts {
			log.Printf("consumer retries exhausted id=%s attempts=%d: %v", env.EventID, attempt, err)
			if pubErr := c.pub.Publish(ctx, c.cfg.DeadLetterTopic, m.Key, m.Value, m.Headers...); pubErr != nil {
				return outcomeDeadLettered, pubErr
			}
			return outcomeDeadLettered, nil
		}
		log.Printf("consumer handle id=%s attempt=%d: %v", env.EventID, attempt, err)
		c.sleep(delay)
		delay *= time.Duration(c.cfg.RetryMultiplier)
	}
}

func (c *Consumer) dispatch(ctx context.Context, kind EventKind, env Envelope) error {
	switch kind {
	case KindOrderCreated:
		if c.handlers.OrderCreated == nil {
			return nil
		}
		var data OrderCreatedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return err
		}
		return c.handlers.OrderCreated(ctx, data)
	case KindProductCreated:
		if c.handlers.ProductCreated == nil {
			return nil
		}
		return c.handlers.ProductCreated(ctx, env)
	case KindCategoryCreated:
		if c.handlers.CategoryCreated == nil {
			return nil
		}
		return c.handlers.CategoryCreated(ctx, env)
	}
	return nil
}

// quarantine 把消息原样转入失效信主题后确认。
func (c *Consumer) quarantine(ctx context.Context, m kafka.Message, o outcome) (outcome, error) {
	if err := c.pub.Publish(ctx, c.cfg.InvalidTopic, m.Key, m.Value, m.Headers...); err != nil {
		return o, err
	}
	return o, nil
}
