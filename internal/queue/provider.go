package queue

import (
	"fmt"
	"log/slog"

	"github.com/unclebandit/campaign-dispatch/internal/config"
)

// New opens the queue named by cfg.Driver.
func New(cfg config.QueueConfig, l *slog.Logger) (Queue, error) {
	switch cfg.Driver {
	case "", "amqp":
		return DialAMQP(cfg.URL, cfg.Name, cfg.Concurrency, l)
	case "memory":
		return NewInMemoryQueue(l), nil
	}
	return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
}
