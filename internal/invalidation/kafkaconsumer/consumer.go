// Package kafkaconsumer applies collection change events from other API
// instances to the shared collection cache.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/pgstac-api/internal/core/observability"
	"github.com/mohammed-shakir/pgstac-api/internal/invalidation"
	mylog "github.com/mohammed-shakir/pgstac-api/internal/logger"
)

// Invalidator is satisfied by *collections.Cache.
type Invalidator interface {
	Invalidate(ctx context.Context, collectionID string) error
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	cache  Invalidator
	dedupe *invalidation.Dedupe
	zlog   *zerolog.Logger
}

func New(cfg Config, logger *slog.Logger, zl *zerolog.Logger, c Invalidator) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if zl == nil {
		nop := zerolog.Nop()
		zl = &nop
	}
	base := mylog.WithComponent(context.Background(), "kafka_consumer")
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		cache:  c,
		dedupe: invalidation.NewDedupe(cfg.DedupeSize),
		zlog:   mylog.FromContext(base, zl),
	}
}

// Start blocks until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("kafkaconsumer: missing cache")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}
	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil && ctx.Err() == nil {
				obs.IncKafkaConsumerError("consume")
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne applies a single change event. Undecodable or invalid events are
// logged and skipped so they cannot stall the partition; cache failures are
// returned and the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.poison(ctx, "decode", msg, err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		c.poison(ctx, "invalid", msg, err)
		return nil
	}

	if c.dedupe.Stale(ev.DedupeKey(), ev.Seq) {
		obs.ObserveInvalidation("duplicate", nil, time.Since(start).Seconds())
		c.logger.Debug("skipping stale change event",
			"collection", ev.Collection, "source", ev.Source, "seq", ev.Seq)
		return nil
	}

	if err := c.cache.Invalidate(ctx, ev.Collection); err != nil {
		obs.IncKafkaConsumerError("redis_del")
		obs.ObserveInvalidation(ev.Op, err, time.Since(start).Seconds())
		mylog.FromContext(mylog.WithCollection(ctx, ev.Collection), c.zlog).Error().
			Str("kind", "redis_del").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Err(err).
			Msg("kafka error")
		return fmt.Errorf("invalidate %s: %w", ev.Collection, err)
	}

	c.dedupe.Record(ev.DedupeKey(), ev.Seq)
	obs.ObserveInvalidation(ev.Op, nil, time.Since(start).Seconds())
	mylog.FromContext(mylog.WithCollection(ctx, ev.Collection), c.zlog).Debug().
		Str("event", "invalidation").
		Str("op", ev.Op).
		Str("source", ev.Source).
		Uint64("seq", ev.Seq).
		Msg("invalidated collection")
	return nil
}

func (c *Consumer) poison(ctx context.Context, kind string, msg *sarama.ConsumerMessage, err error) {
	obs.IncKafkaConsumerError(kind)
	mylog.FromContext(ctx, c.zlog).Warn().
		Str("kind", kind).
		Str("topic", msg.Topic).
		Int32("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Err(err).
		Msg("skipping change event")
}
