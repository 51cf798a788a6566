package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/distlock"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
)

type processorFunc func(ctx context.Context, job model.Job) (Result, error)

func (f processorFunc) Process(ctx context.Context, job model.Job) (Result, error) {
	return f(ctx, job)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestWorker_HandleHoldsCampaignLock(t *testing.T) {
	mr, client := newRedis(t)
	locks := distlock.NewFactory(client, nil, time.Minute)

	var held bool
	w := NewWorker(processorFunc(func(ctx context.Context, job model.Job) (Result, error) {
		held = mr.Exists("lock:campaign:1")
		return Result{State: StateCompleted, Sent: len(job.Leads)}, nil
	}), nil, locks, time.Minute, nil)

	require.NoError(t, w.Handle(context.Background(), model.Job{CampaignID: 1, Leads: leads("a@x.io")}))
	assert.True(t, held)
	assert.False(t, mr.Exists("lock:campaign:1"))
}

func TestWorker_BusyCampaign(t *testing.T) {
	_, client := newRedis(t)
	locks := distlock.NewFactory(client, nil, time.Minute)

	other := locks("campaign:1")
	ok, err := other.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	called := false
	w := NewWorker(processorFunc(func(ctx context.Context, job model.Job) (Result, error) {
		called = true
		return Result{}, nil
	}), nil, locks, time.Minute, nil)

	err = w.Handle(context.Background(), model.Job{CampaignID: 1})
	assert.ErrorIs(t, err, appErrors.ErrCampaignBusy)
	assert.False(t, called)

	// other campaigns are unaffected
	assert.NoError(t, w.Handle(context.Background(), model.Job{CampaignID: 2}))
	assert.True(t, called)
}

func TestWorker_ExtendsLockDuringLongJob(t *testing.T) {
	mr, client := newRedis(t)
	locks := distlock.NewFactory(client, nil, 300*time.Millisecond)

	w := NewWorker(processorFunc(func(ctx context.Context, job model.Job) (Result, error) {
		// miniredis expires keys only when time is fast-forwarded
		time.Sleep(150 * time.Millisecond)
		mr.FastForward(200 * time.Millisecond)
		time.Sleep(150 * time.Millisecond)
		mr.FastForward(200 * time.Millisecond)
		if !mr.Exists("lock:campaign:3") {
			return Result{}, errors.New("lock expired mid-job")
		}
		return Result{State: StateCompleted}, nil
	}), nil, locks, 300*time.Millisecond, nil)

	assert.NoError(t, w.Handle(context.Background(), model.Job{CampaignID: 3}))
}

func TestWorker_LostLockCancelsJob(t *testing.T) {
	mr, client := newRedis(t)
	locks := distlock.NewFactory(client, nil, 300*time.Millisecond)

	w := NewWorker(processorFunc(func(ctx context.Context, job model.Job) (Result, error) {
		// another process takes over the key
		mr.Set("lock:campaign:4", "someone-else")
		select {
		case <-ctx.Done():
			return Result{State: StateProcessing}, nil
		case <-time.After(2 * time.Second):
			return Result{}, errors.New("job kept running without its lock")
		}
	}), nil, locks, 300*time.Millisecond, nil)

	require.NoError(t, w.Handle(context.Background(), model.Job{CampaignID: 4}))
	// the other owner's lock is left alone
	got, err := mr.Get("lock:campaign:4")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestWorker_IgnoresCancellationOnceAccepted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWorker(processorFunc(func(ctx context.Context, job model.Job) (Result, error) {
		return Result{State: StateCompleted}, ctx.Err()
	}), nil, nil, 0, nil)

	assert.NoError(t, w.Handle(ctx, model.Job{CampaignID: 1}))
}

func TestWorker_PropagatesProcessorError(t *testing.T) {
	w := NewWorker(processorFunc(func(ctx context.Context, job model.Job) (Result, error) {
		return Result{State: StateFailed}, appErrors.Permanent(errors.New("boom"))
	}), nil, nil, 0, nil)

	err := w.Handle(context.Background(), model.Job{CampaignID: 1})
	assert.True(t, appErrors.IsPermanent(err))
}

func TestWorker_StartConsumesQueue(t *testing.T) {
	_, client := newRedis(t)
	q := queue.NewInMemoryQueue(nil)

	var mu sync.Mutex
	var seen []int
	done := make(chan struct{}, 2)
	w := NewWorker(processorFunc(func(ctx context.Context, job model.Job) (Result, error) {
		mu.Lock()
		seen = append(seen, job.CampaignID)
		mu.Unlock()
		done <- struct{}{}
		return Result{State: StateCompleted}, nil
	}), q, distlock.NewFactory(client, nil, time.Minute), time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, q.Enqueue(ctx, model.Job{CampaignID: 1}, 0))
	require.NoError(t, q.Enqueue(ctx, model.Job{CampaignID: 2}, 0))
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	require.NoError(t, q.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{1, 2}, seen)
}

func TestWorker_EndToEndPause(t *testing.T) {
	f := newDispatchFixture(model.CampaignRunning)
	f.gateway.outcomes["b@x.io"] = gatewayLimit()

	q := queue.NewInMemoryQueue(nil)
	f.d.Queue = q
	w := NewWorker(f.d, q, nil, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, q.Enqueue(ctx, model.Job{CampaignID: 1, Leads: leads("a@x.io", "b@x.io")}, 0))

	require.Eventually(t, func() bool { return q.Scheduled() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, q.Close())

	c := f.campaigns.get(1)
	assert.Equal(t, model.CampaignPaused, c.Status)
	assert.Equal(t, 1, c.SentCount)
}
