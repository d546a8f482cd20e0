package queue

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// requeueCyclesHeader 记录消息已经走过几轮「死信 → 原主题」循环。
const requeueCyclesHeader = "requeue-cycles"

// Requeuer 把死信消息重新发回原主题，再走一轮完整的重试周期。
// 这是针对暂时性故障的兜底，不是终点站：MaxCycles 为 0 时无限循环，
// 真正的毒消息只能靠过期检查最终拦下；MaxCycles > 0 时超过轮数转入失效信主题。
type Requeuer struct {
	r      *kafka.Reader
	pub    Publisher
	target string
	// invalidTopic 承接超过 MaxCycles 的消息。
	invalidTopic string
	maxCycles    int

	sleep func(time.Duration)
}

func NewRequeuer(brokers []string, groupID, deadLetterTopic, targetTopic, invalidTopic string, maxCycles int) *Requeuer {
	return &Requeuer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    deadLetterTopic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		target:       targetTopic,
		invalidTopic: invalidTopic,
		maxCycles:    maxCycles,
		sleep:        time.Sleep,
	}
}

// WithPublisher 注入发布器（wiring 阶段调用一次）。
func (q *Requeuer) WithPublisher(pub Publisher) *Requeuer {
	q.pub = pub
	return q
}

func (q *Requeuer) Close() error { return q.r.Close() }

func (q *Requeuer) Run(ctx context.Context) {
	for {
		m, err := q.r.FetchMessage(ctx)
		if err != nil {
			return
		}

		topic, headers := q.route(m)
		if err := q.pub.Publish(ctx, topic, m.Key, m.Value, headers...); err != nil {
			// 转发失败不提交，消息留在死信主题等待重投。
			log.Printf("requeue publish offset=%d: %v", m.Offset, err)
			q.sleep(300 * time.Millisecond)
			continue
		}
		if err := q.r.CommitMessages(ctx, m); err != nil {
			log.Printf("requeue commit offset=%d: %v", m.Offset, err)
		}
	}
}

// route 决定转发目标：轮数超限进失效信，否则带着递增的轮数头回原主题。
func (q *Requeuer) route(m kafka.Message) (string, []kafka.Header) {
	cycles := cyclesFromHeaders(m.Headers) + 1
	if q.maxCycles > 0 && cycles > q.maxCycles {
		log.Printf("requeue poison message key=%s cycles=%d", string(m.Key), cycles)
		return q.invalidTopic, m.Headers
	}

	headers := make([]kafka.Header, 0, len(m.Headers)+1)
	for _, h := range m.Headers {
		if h.Key == requeueCyclesHeader {
			continue
		}
		headers = append(headers, h)
	}
	headers = append(headers, kafka.Header{
		Key:   requeueCyclesHeader,
		Value: []byte(strconv.Itoa(cycles)),
	})
	return q.target, headers
}

func cyclesFromHeaders(headers []kafka.Header) int {
	for _, h := range headers {
		if h.Key != requeueCyclesHeader {
			continue
		}
		n, err := strconv.Atoi(string(h.Value))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
