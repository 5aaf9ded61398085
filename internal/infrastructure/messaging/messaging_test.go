package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newTestConsumer(rdb *redis.Client, retryLimit int, onDLQ DeadLetterHandler) *Consumer {
	return NewConsumer(rdb, ConsumerConfig{
		Stream:        StreamIngestDocuments,
		Group:         ConsumerGroupIngestWorker,
		ConsumerName:  "test-worker",
		BlockTimeout:  50 * time.Millisecond,
		ClaimInterval: time.Hour,
		RetryLimit:    retryLimit,
		Backoff:       BackoffConfig{Initial: time.Millisecond, Max: 10 * time.Millisecond, Multiplier: 2},
		OnDeadLetter:  onDLQ,
	})
}

func TestBackoffConfig_CalculateBackoff(t *testing.T) {
	t.Run("Should grow geometrically and cap at max", func(t *testing.T) {
		cfg := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2}
		assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
		assert.Equal(t, 2*time.Second, cfg.CalculateBackoff(1))
		assert.Equal(t, 4*time.Second, cfg.CalculateBackoff(2))
		assert.Equal(t, 5*time.Second, cfg.CalculateBackoff(3))
	})
}

func TestProducer_PublishIngest(t *testing.T) {
	t.Run("Should append an ingest message carrying the job id", func(t *testing.T) {
		rdb := newTestRedis(t)
		p := NewProducer(rdb, 100)

		id, err := p.PublishIngest(context.Background(), &IngestMessage{
			JobID:       "job-1",
			Filename:    "kicd.pdf",
			ContentType: "application/pdf",
			BlobKey:     "ingest:blob:job-1",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		n, err := rdb.XLen(context.Background(), string(StreamIngestDocuments)).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestConsumer(t *testing.T) {
	t.Run("Should dispatch by message type and ack on success", func(t *testing.T) {
		rdb := newTestRedis(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c := newTestConsumer(rdb, 3, nil)
		got := make(chan IngestMessage, 1)
		c.RegisterHandler(MessageTypeDocumentIngest, func(ctx context.Context, msg *Message) error {
			var payload IngestMessage
			require.NoError(t, msg.UnmarshalPayload(&payload))
			assert.Equal(t, "job-2", msg.GetMetadata("job_id"))
			got <- payload
			return nil
		})
		require.NoError(t, c.Start(ctx))
		defer c.Stop()

		_, err := NewProducer(rdb, 0).PublishIngest(ctx, &IngestMessage{JobID: "job-2", Filename: "notes.txt"})
		require.NoError(t, err)

		select {
		case payload := <-got:
			assert.Equal(t, "notes.txt", payload.Filename)
		case <-time.After(3 * time.Second):
			t.Fatal("handler was not invoked")
		}

		assert.Eventually(t, func() bool {
			pending, err := rdb.XPending(ctx, string(StreamIngestDocuments), string(ConsumerGroupIngestWorker)).Result()
			return err == nil && pending.Count == 0
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("Should move a failing message to the DLQ and notify", func(t *testing.T) {
		rdb := newTestRedis(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var (
			mu       sync.Mutex
			deadJobs []string
			attempts int32
		)
		c := newTestConsumer(rdb, 1, func(_ context.Context, msg *Message, cause error) {
			mu.Lock()
			defer mu.Unlock()
			deadJobs = append(deadJobs, msg.ID)
			assert.Error(t, cause)
		})
		c.RegisterHandler(MessageTypeDocumentIngest, func(context.Context, *Message) error {
			atomic.AddInt32(&attempts, 1)
			return errors.New("extraction failed")
		})
		require.NoError(t, c.Start(ctx))
		defer c.Stop()

		_, err := NewProducer(rdb, 0).PublishIngest(ctx, &IngestMessage{JobID: "job-3"})
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			n, err := rdb.XLen(ctx, StreamIngestDocuments.DLQStream()).Result()
			return err == nil && n == 1
		}, 3*time.Second, 20*time.Millisecond)

		mu.Lock()
		assert.Equal(t, []string{"job-3"}, deadJobs)
		mu.Unlock()
		assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(1))
	})

	t.Run("Should redeliver a failed message after backoff and ack it on success", func(t *testing.T) {
		rdb := newTestRedis(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var attempts int32
		c := newTestConsumer(rdb, 3, func(context.Context, *Message, error) {
			t.Error("message must not reach the DLQ")
		})
		c.RegisterHandler(MessageTypeDocumentIngest, func(context.Context, *Message) error {
			if atomic.AddInt32(&attempts, 1) == 1 {
				return errors.New("vector store unavailable")
			}
			return nil
		})
		require.NoError(t, c.Start(ctx))
		defer c.Stop()

		_, err := NewProducer(rdb, 0).PublishIngest(ctx, &IngestMessage{JobID: "job-4"})
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			pending, err := rdb.XPending(ctx, string(StreamIngestDocuments), string(ConsumerGroupIngestWorker)).Result()
			return atomic.LoadInt32(&attempts) == 2 && err == nil && pending.Count == 0
		}, 3*time.Second, 20*time.Millisecond)

		n, err := rdb.XLen(ctx, StreamIngestDocuments.DLQStream()).Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Should ack and drop entries without a decodable payload", func(t *testing.T) {
		rdb := newTestRedis(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var calls int32
		c := newTestConsumer(rdb, 3, nil)
		c.RegisterHandler(MessageTypeDocumentIngest, func(context.Context, *Message) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
		require.NoError(t, c.Start(ctx))
		defer c.Stop()

		for _, values := range []map[string]any{{"other": "x"}, {"data": "{not json"}} {
			require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{Stream: string(StreamIngestDocuments), Values: values}).Err())
		}

		_, err := NewProducer(rdb, 0).PublishIngest(ctx, &IngestMessage{JobID: "job-5"})
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			pending, err := rdb.XPending(ctx, string(StreamIngestDocuments), string(ConsumerGroupIngestWorker)).Result()
			return atomic.LoadInt32(&calls) == 1 && err == nil && pending.Count == 0
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("Should refuse to start twice", func(t *testing.T) {
		rdb := newTestRedis(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c := newTestConsumer(rdb, 3, nil)
		require.NoError(t, c.Start(ctx))
		defer c.Stop()
		assert.Error(t, c.Start(ctx))
	})
}
