package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/remote"
)

// Publisher writes change events to the change topic, keyed by team id so
// one team's events stay ordered within a partition
type Publisher struct {
	topic    string
	producer sarama.AsyncProducer
	logger   *slog.Logger
	wg       sync.WaitGroup

	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewPublisher creates an async producer for the configured brokers
func NewPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Retry.Max = cfg.RetryAttempts
	saramaConfig.Producer.Retry.Backoff = cfg.RetryDelay
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return newPublisher(producer, cfg.Topic, logger), nil
}

func newPublisher(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *Publisher {
	p := &Publisher{
		topic:    topic,
		producer: producer,
		logger:   logger,
	}

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		for range producer.Successes() {
			p.succeeded.Add(1)
		}
	}()
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			p.failed.Add(1)
			p.logger.Error("failed to publish change event", "error", err.Err)
		}
	}()
	return p
}

// Publish queues one change event
func (p *Publisher) Publish(ev remote.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding change event: %w", err)
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.TeamID),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

// Forward publishes every event of the subscription until it closes or ctx
// is done. It returns the number of events published.
func (p *Publisher) Forward(ctx context.Context, sub remote.Subscription) (int, error) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return n, nil
			}
			if err := p.Publish(ev); err != nil {
				p.logger.Warn("skipping change event", "table", ev.Table, "error", err)
				continue
			}
			n++
		}
	}
}

// Counts returns the number of acknowledged and failed messages
func (p *Publisher) Counts() (succeeded, failed int64) {
	return p.succeeded.Load(), p.failed.Load()
}

// Close flushes pending messages and closes the producer
func (p *Publisher) Close() error {
	err := p.producer.Close()
	p.wg.Wait()
	return err
}
