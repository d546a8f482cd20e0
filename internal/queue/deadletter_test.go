package queue

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestRouteRequeuesToOriginalTopic(t *testing.T) {
	q := &Requeuer{target: "orders", invalidTopic: "orders-invalid", maxCycles: 0}

	topic, headers := q.route(kafka.Message{Key: []byte("k"), Value: []byte("v")})
	if topic != "orders" {
		t.Fatalf("expected original topic, got %s", topic)
	}
	if n := cyclesFromHeaders(headers); n != 1 {
		t.Fatalf("expected cycle counter 1, got %d", n)
	}

	// 第二轮：轮数递增。
	topic, headers = q.route(kafka.Message{Headers: headers})
	if topic != "orders" {
		t.Fatalf("expected original topic, got %s", topic)
	}
	if n := cyclesFromHeaders(headers); n != 2 {
		t.Fatalf("expected cycle counter 2, got %d", n)
	}
}

// maxCycles=0 保持源语义：无限回灌，永不转失效信。
func TestRouteInfiniteWhenUnbounded(t *testing.T) {
	q := &Requeuer{target: "orders", invalidTopic: "orders-invalid", maxCycles: 0}

	headers := []kafka.Header{{Key: requeueCyclesHeader, Value: []byte("9999")}}
	topic, _ := q.route(kafka.Message{Headers: headers})
	if topic != "orders" {
		t.Fatalf("unbounded requeue must stay on original topic, got %s", topic)
	}
}

func TestRouteDivertsPoisonPastMaxCycles(t *testing.T) {
	q := &Requeuer{target: "orders", invalidTopic: "orders-invalid", maxCycles: 2}

	headers := []kafka.Header{{Key: requeueCyclesHeader, Value: []byte("2")}}
	topic, _ := q.route(kafka.Message{Headers: headers})
	if topic != "orders-invalid" {
		t.Fatalf("expected poison diverted to invalid topic, got %s", topic)
	}
}

func TestCyclesFromHeadersIgnoresGarbage(t *testing.T) {
	headers := []kafka.Header{{Key: requeueCyclesHeader, Value: []byte("abc")}}
	if n := cyclesFromHeaders(headers); n != 0 {
		t.Fatalf("expected 0 for unparsable header, got %d", n)
	}
	if n := cyclesFromHeaders(nil); n != 0 {
		t.Fatalf("expected 0 for missing header, got %d", n)
	}
}
