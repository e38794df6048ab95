package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestNewClientParsesBrokers(t *testing.T) {
	c := NewClient(" broker-1:9092, ,broker-2:9092 ")
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, c.Brokers)
	assert.True(t, c.Enabled())
	assert.False(t, NewClient("").Enabled())
}

func TestPublishJSONKeysMessage(t *testing.T) {
	w := &captureWriter{}
	require.NoError(t, PublishJSON(context.Background(), w, "order-1", map[string]string{"status": "paid"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-1", string(w.msgs[0].Key))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, "paid", body["status"])
}
