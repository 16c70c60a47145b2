package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisClient_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClientFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := client.Subscribe(ctx, "payment.completed")
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, "payment.completed", map[string]string{"receipt_code": "QGH7ABC123"}))

	select {
	case msg := <-messages:
		assert.Equal(t, "payment.completed", msg.Channel)
		var body map[string]string
		require.NoError(t, json.Unmarshal(msg.Payload, &body))
		assert.Equal(t, "QGH7ABC123", body["receipt_code"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(addr, "", 0)
	assert.Error(t, err)
}
