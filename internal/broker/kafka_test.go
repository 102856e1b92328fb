package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingHandler(failures int, calls *int) MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		*calls++
		if *calls <= failures {
			return errors.New("publisher unavailable")
		}
		return nil
	}
}

func TestHandleWithRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := handleWithRetry(context.Background(), failingHandler(2, &calls), kafka.Message{Offset: 7}, 3, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestHandleWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := handleWithRetry(context.Background(), failingHandler(10, &calls), kafka.Message{Offset: 7}, 3, time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, "publisher unavailable", err.Error())
	assert.Equal(t, 3, calls)
}

func TestHandleWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := func(ctx context.Context, msg kafka.Message) error {
		calls++
		cancel()
		return errors.New("publisher unavailable")
	}

	start := time.Now()
	err := handleWithRetry(ctx, handler, kafka.Message{}, 5, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewConsumerOptions(t *testing.T) {
	c := NewConsumer([]string{"localhost:9092"}, "support.actions", "support-gateway")
	defer c.Close()
	assert.Equal(t, defaultHandlerAttempts, c.attempts)
	assert.Equal(t, defaultHandlerBackoff, c.backoff)

	c2 := NewConsumer([]string{"localhost:9092"}, "support.actions", "support-gateway", WithHandlerRetries(5, 0))
	defer c2.Close()
	assert.Equal(t, 5, c2.attempts)
	assert.Equal(t, time.Duration(0), c2.backoff)
}
