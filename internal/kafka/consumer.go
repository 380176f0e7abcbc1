// Package kafka carries remote change events over a Kafka topic. The
// Publisher writes them, keyed by team; the Consumer is a remote.ChangeFeed
// that reads them back and fans them out to per-team subscriptions.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/remote"
)

// Consumer consumes change events from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	fanout        *remote.Fanout
	sessions      atomic.Int64
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan struct{}
	readyOnce     sync.Once
}

// NewConsumer creates a new Kafka consumer. Each device must use its own
// group id, since every device needs every event of its team.
func NewConsumer(cfg *config.KafkaConfig, buffer int, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	c := newConsumer(cfg, buffer, logger)
	c.consumerGroup = consumerGroup
	return c, nil
}

func newConsumer(cfg *config.KafkaConfig, buffer int, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config: cfg,
		logger: logger,
		fanout: remote.NewFanout(buffer),
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
	}
}

// Start begins consuming messages from Kafka and waits until the first
// session is set up or ctx is done
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		handler := &consumerGroupHandler{consumer: c}
		for {
			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for consumer group session: %w", ctx.Err())
	}
}

// Stop gracefully stops the consumer and closes every subscription
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	c.fanout.CloseAll()
	if c.consumerGroup == nil {
		return nil
	}
	return c.consumerGroup.Close()
}

// Subscribe opens a change stream for the team's rows in the given tables
func (c *Consumer) Subscribe(ctx context.Context, teamID string, tables []remote.Table) (remote.Subscription, error) {
	return c.fanout.Subscribe(ctx, teamID, tables)
}

func (c *Consumer) dispatch(ev remote.ChangeEvent) {
	if dropped := c.fanout.Dispatch(ev); dropped > 0 {
		c.logger.Warn("subscription buffer full, dropping change event",
			"table", ev.Table,
			"team_id", ev.TeamID,
			"subscriptions", dropped,
		)
	}
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
}

// Setup is called at the beginning of a new session. Every session after
// the first follows a rebalance or reconnect, so subscribers are told to
// reload.
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	c := h.consumer
	if c.sessions.Add(1) > 1 {
		c.logger.Info("consumer group session restarted, resetting subscriptions")
		c.dispatch(remote.ChangeEvent{Op: remote.OpReset})
	}
	c.readyOnce.Do(func() { close(c.ready) })
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			ev, err := decodeMessage(message.Value)
			if err != nil {
				c.logger.Warn("dropping change message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			c.dispatch(ev)
			session.MarkMessage(message, "")
		}
	}
}

// decodeMessage parses and validates one change message. A reset published
// by the relay carries no table or row.
func decodeMessage(value []byte) (remote.ChangeEvent, error) {
	var ev remote.ChangeEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return ev, fmt.Errorf("decoding change message: %v: %w", err, domain.ErrMalformedEvent)
	}
	if ev.Op == remote.OpReset {
		return ev, nil
	}
	if !ev.Table.Known() {
		return ev, fmt.Errorf("change message for table %q: %w", ev.Table, domain.ErrMalformedEvent)
	}
	switch ev.Op {
	case remote.OpInsert, remote.OpUpdate, remote.OpDelete:
	default:
		return ev, fmt.Errorf("change message op %q: %w", ev.Op, domain.ErrMalformedEvent)
	}
	if len(ev.Row()) == 0 {
		return ev, fmt.Errorf("change message without row: %w", domain.ErrMalformedEvent)
	}
	return ev, nil
}
