// Package changefeed publishes committed catalog writes to Kafka so other
// instances can drop their cached copies.
package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/pgstac-api/internal/core/observability"
	"github.com/mohammed-shakir/pgstac-api/internal/invalidation"
	"github.com/mohammed-shakir/pgstac-api/internal/transactions"
)

// Publisher never blocks a request: events go through a bounded queue and are
// dropped when it is full.
type Publisher struct {
	topic    string
	source   string
	seq      atomic.Uint64
	events   chan invalidation.Event
	prod     sarama.AsyncProducer
	log      *slog.Logger
	stopped  chan struct{}
	errsDone chan struct{}

	// mu guards closed against sends racing Close.
	mu     sync.RWMutex
	closed bool
}

func NewPublisher(brokers []string, topic, source string, queueSize int, log *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	// Keyed by collection so one collection's events stay ordered.
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("changefeed: create async producer: %w", err)
	}
	return newPublisher(prod, topic, source, queueSize, log), nil
}

func newPublisher(prod sarama.AsyncProducer, topic, source string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		topic:    topic,
		source:   source,
		events:   make(chan invalidation.Event, queueSize),
		prod:     prod,
		log:      log,
		stopped:  make(chan struct{}),
		errsDone: make(chan struct{}),
	}
	// Seeded from the clock so a restarted instance keeps counting upward.
	p.seq.Store(uint64(time.Now().UnixNano()))

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				observability.IncChangeEvent("error")
				p.log.Error("changefeed: marshal error", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Collection),
				Value: sarama.ByteEncoder(b),
			}
			observability.IncChangeEvent("sent")
		}
	}()

	go func() {
		defer close(p.errsDone)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncChangeEvent("error")
				p.log.Warn("changefeed: producer error", "err", err)
			}
		}
	}()

	return p
}

// Notify queues ch. It never fails the write that produced it; after Close
// events are counted as dropped.
func (p *Publisher) Notify(_ context.Context, ch transactions.Change) error {
	ev := invalidation.FromChange(ch, p.source, p.seq.Add(1), time.Now())
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		observability.IncChangeEvent("dropped")
		return nil
	}
	select {
	case p.events <- ev:
	default:
		observability.IncChangeEvent("dropped")
	}
	return nil
}

// Close drains queued events and shuts the producer down. Only the first call
// does any work.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()
	<-p.stopped

	err := p.prod.Close()
	<-p.errsDone
	if err != nil {
		return fmt.Errorf("changefeed: close producer: %w", err)
	}
	return nil
}
