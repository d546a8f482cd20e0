package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind(t *testing.T) {
	for _, s := range []string{"ORDER_CREATED", "PRODUCT_CREATED", "CATEGORY_CREATED"} {
		k, err := ParseEventKind(s)
		require.NoError(t, err)
		assert.Equal(t, EventKind(s), k)
	}

	_, err := ParseEventKind("ORDER_DELETED")
	assert.Error(t, err)
	_, err = ParseEventKind("")
	assert.Error(t, err)
}

func TestEnvelopeValidate(t *testing.T) {
	valid := Envelope{
		EventID:       "ev-1",
		AggregateID:   "agg-1",
		AggregateName: "order",
		EventType:     "ORDER_CREATED",
		OccurredOn:    time.Now(),
	}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*Envelope){
		"event_id":       func(e *Envelope) { e.EventID = "" },
		"aggregate_id":   func(e *Envelope) { e.AggregateID = "" },
		"aggregate_name": func(e *Envelope) { e.AggregateName = "" },
		"event_type":     func(e *Envelope) { e.EventType = "" },
		"occurred_on":    func(e *Envelope) { e.OccurredOn = time.Time{} },
	} {
		e := valid
		mutate(&e)
		assert.Error(t, e.Validate(), name)
	}
}
