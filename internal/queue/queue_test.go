package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

func fastQueue() *InMemoryQueue {
	q := NewInMemoryQueue(nil)
	q.Policy = RetryPolicy{MaxRetries: 3, RetryBackoff: time.Millisecond, BusyDelay: time.Millisecond}
	return q
}

func TestInMemoryQueue_DeliversPendingOnSubscribe(t *testing.T) {
	q := fastQueue()
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), model.Job{CampaignID: 1}, 0))

	got := make(chan model.Job, 1)
	require.NoError(t, q.Subscribe(context.Background(), func(ctx context.Context, job model.Job) error {
		got <- job
		return nil
	}))

	select {
	case job := <-got:
		assert.Equal(t, 1, job.CampaignID)
	case <-time.After(time.Second):
		t.Fatal("job not delivered")
	}
}

func TestInMemoryQueue_Delay(t *testing.T) {
	q := fastQueue()
	defer q.Close()

	got := make(chan time.Time, 1)
	require.NoError(t, q.Subscribe(context.Background(), func(ctx context.Context, job model.Job) error {
		got <- time.Now()
		return nil
	}))

	start := time.Now()
	require.NoError(t, q.Enqueue(context.Background(), model.Job{CampaignID: 2}, 50*time.Millisecond))
	assert.Equal(t, 1, q.Scheduled())

	select {
	case at := <-got:
		assert.GreaterOrEqual(t, at.Sub(start), 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed job not delivered")
	}
}

func TestInMemoryQueue_RetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int32
	}{
		{"success", nil, 1},
		{"transient", errors.New("db down"), 4},
		{"permanent", appErrors.Permanent(errors.New("bad")), 1},
		{"not found", appErrors.NewCampaignNotFound(9), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := fastQueue()
			var calls atomic.Int32
			require.NoError(t, q.Subscribe(context.Background(), func(ctx context.Context, job model.Job) error {
				calls.Add(1)
				return tt.err
			}))
			require.NoError(t, q.Enqueue(context.Background(), model.Job{CampaignID: 3}, 0))

			// let all retries play out before closing
			time.Sleep(100 * time.Millisecond)
			require.NoError(t, q.Close())
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestInMemoryQueue_BusyDoesNotConsumeRetries(t *testing.T) {
	q := fastQueue()
	defer q.Close()

	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})
	require.NoError(t, q.Subscribe(context.Background(), func(ctx context.Context, job model.Job) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 6 {
			return appErrors.ErrCampaignBusy
		}
		close(done)
		return nil
	}))
	require.NoError(t, q.Enqueue(context.Background(), model.Job{CampaignID: 4}, 0))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("busy job was dropped")
	}
}

func TestInMemoryQueue_Closed(t *testing.T) {
	q := fastQueue()
	require.NoError(t, q.Enqueue(context.Background(), model.Job{CampaignID: 5}, time.Hour))
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(context.Background(), model.Job{}, 0), ErrClosed)
	assert.ErrorIs(t, q.Subscribe(context.Background(), nil), ErrClosed)
	assert.Equal(t, 0, q.Scheduled())
}

func TestRetryPolicyDecide(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, RetryBackoff: time.Second, BusyDelay: 30 * time.Second}

	act, _ := p.decide(nil, 0)
	assert.Equal(t, actionAck, act)

	act, delay := p.decide(errors.New("x"), 1)
	assert.Equal(t, actionRetry, act)
	assert.Equal(t, 2*time.Second, delay)

	act, _ = p.decide(errors.New("x"), 3)
	assert.Equal(t, actionDrop, act)

	act, delay = p.decide(appErrors.ErrCampaignBusy, 3)
	assert.Equal(t, actionBusy, act)
	assert.Equal(t, 30*time.Second, delay)
}

func TestDelayQueueNaming(t *testing.T) {
	assert.Equal(t, "campaign_dispatch.delay.86400000", delayQueueName("campaign_dispatch", 24*time.Hour))

	args := delayQueueArgs("campaign_dispatch", 24*time.Hour)
	assert.Equal(t, int64(86400000), args["x-message-ttl"])
	assert.Equal(t, "", args["x-dead-letter-exchange"])
	assert.Equal(t, "campaign_dispatch", args["x-dead-letter-routing-key"])
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, retryCount(nil))
	assert.Equal(t, 2, retryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 3, retryCount(amqp.Table{retryHeader: int64(3)}))
	assert.Equal(t, 0, retryCount(amqp.Table{retryHeader: "3"}))
}

func TestNew(t *testing.T) {
	q, err := New(config.QueueConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryQueue{}, q)
	require.NoError(t, q.Close())

	_, err = New(config.QueueConfig{Driver: "kafka"}, nil)
	assert.ErrorContains(t, err, "kafka")
}
