package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/pkg/logger"
)

const retryHeader = "x-retry-count"

// publishChannel is the part of *amqp.Channel used to publish and declare
// holding queues.
type publishChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Close() error
}

// AMQPQueue is a durable queue on RabbitMQ. Delayed jobs wait in a holding
// queue per delay value whose messages expire into the main queue, so every
// holding queue stays FIFO by expiry time.
type AMQPQueue struct {
	Policy      RetryPolicy
	name        string
	concurrency int
	logger      *slog.Logger

	conn *amqp.Connection

	pubMu    sync.Mutex
	pubCh    publishChannel
	declared map[string]bool

	wg sync.WaitGroup
}

// DialAMQP connects to url and declares the durable queue name.
func DialAMQP(url, name string, concurrency int, l *slog.Logger) (*AMQPQueue, error) {
	if l == nil {
		l = logger.Discard()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return &AMQPQueue{
		Policy:      DefaultRetryPolicy(),
		name:        name,
		concurrency: concurrency,
		logger:      l,
		conn:        conn,
		pubCh:       ch,
		declared:    map[string]bool{name: true},
	}, nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, job model.Job, delay time.Duration) error {
	return q.publish(ctx, job, delay, 0)
}

func (q *AMQPQueue) publish(ctx context.Context, job model.Job, delay time.Duration, retries int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	routingKey := q.name
	if delay > 0 {
		routingKey = delayQueueName(q.name, delay)
		if err := q.declareDelayLocked(routingKey, delay); err != nil {
			return err
		}
	}

	err = q.pubCh.Publish("", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish campaign %d to %s: %w", job.CampaignID, routingKey, err)
	}
	return nil
}

func (q *AMQPQueue) declareDelayLocked(name string, delay time.Duration) error {
	if q.declared[name] {
		return nil
	}
	_, err := q.pubCh.QueueDeclare(name, true, false, false, false, delayQueueArgs(q.name, delay))
	if err != nil {
		return fmt.Errorf("failed to declare delay queue %s: %w", name, err)
	}
	q.declared[name] = true
	return nil
}

// delayQueueName names the holding queue for one delay value.
func delayQueueName(base string, delay time.Duration) string {
	return base + ".delay." + strconv.FormatInt(delay.Milliseconds(), 10)
}

func delayQueueArgs(target string, delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": target,
	}
}

// retryCount reads the retry header; missing or malformed values count as zero.
func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// Subscribe starts concurrency consumers sharing one channel with a
// matching prefetch. Unacked deliveries return to the queue if the
// channel closes mid-job.
func (q *AMQPQueue) Subscribe(ctx context.Context, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	if err := ch.Qos(q.concurrency, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	msgs, err := ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	var consumers sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		consumers.Add(1)
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			defer consumers.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						return
					}
					q.handle(ctx, handler, d)
				}
			}
		}()
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		consumers.Wait()
		ch.Close()
	}()
	return nil
}

func (q *AMQPQueue) handle(ctx context.Context, handler Handler, d amqp.Delivery) {
	var job model.Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		q.logger.Error("invalid job payload, discarding", "message_id", d.MessageId, "error", err)
		d.Nack(false, false)
		return
	}
	retries := retryCount(d.Headers)

	err := handler(ctx, job)
	act, delay := q.Policy.decide(err, retries)
	switch act {
	case actionAck:
		d.Ack(false)
		return
	case actionDrop:
		logFailure(q.logger, job, retries, err)
		d.Ack(false)
		return
	case actionRetry:
		retries++
		q.logger.Warn("job failed, retrying",
			"campaign_id", job.CampaignID,
			"attempt", retries,
			"max_retries", q.Policy.MaxRetries,
			"error", err,
		)
	case actionBusy:
		q.logger.Info("campaign busy, requeueing", "campaign_id", job.CampaignID, "delay", delay)
	}

	// republish then ack; if republishing fails the broker redelivers the original.
	// Ack/Nack go through d.Acknowledger, the consumer channel.
	if err := q.publish(context.WithoutCancel(ctx), job, delay, retries); err != nil {
		q.logger.Error("requeue failed", "campaign_id", job.CampaignID, "error", err)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

// Close waits for consumers to stop and closes the connection.
func (q *AMQPQueue) Close() error {
	q.wg.Wait()
	q.pubMu.Lock()
	q.pubCh.Close()
	q.pubMu.Unlock()
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
