package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduyvuong/ban-hang/internal/messaging/kafka"
)

func TestExtractReplayMessageFromConsumerDLQ(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"original_topic": kafka.TopicOrderEvents,
		"original_key":   "order-1",
		"original_value": `{"hello":"world"}`,
		"error_message":  "handler exploded",
	})
	require.NoError(t, err)

	replay, ok := extractReplayMessage(raw)
	require.True(t, ok)
	assert.Equal(t, kafka.TopicOrderEvents, replay.topic)
	assert.Equal(t, "order-1", replay.key)
	assert.JSONEq(t, `{"hello":"world"}`, string(replay.value))
}

func TestExtractReplayMessageFromOutboxDLQ(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"outbox_id":      "ob-1",
		"aggregate_type": "product",
		"aggregate_id":   "7",
		"event_type":     "stock.low",
		"payload":        json.RawMessage(`{"product_id":7,"stock":2}`),
		"publish_error":  "broker unavailable",
	})
	require.NoError(t, err)

	replay, ok := extractReplayMessage(raw)
	require.True(t, ok)
	assert.Equal(t, kafka.TopicStockEvents, replay.topic)
	assert.Equal(t, "7", replay.key)

	var envelope replayEnvelope
	require.NoError(t, json.Unmarshal(replay.value, &envelope))
	assert.Equal(t, "ob-1", envelope.ID)
	assert.Equal(t, "stock.low", envelope.EventType)
	assert.JSONEq(t, `{"product_id":7,"stock":2}`, string(envelope.Payload))
}

func TestExtractReplayMessageSkipsGarbage(t *testing.T) {
	_, ok := extractReplayMessage([]byte("not json"))
	assert.False(t, ok)

	_, ok = extractReplayMessage([]byte(`{"unrelated":true}`))
	assert.False(t, ok)
}
