// Package eventbus implements an in-memory, partitioned publish/subscribe bus.
// Events are spread over partitions by consistent hashing of their key, so
// events sharing a key are handled in order by a single goroutine.
package eventbus

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/serialx/hashring"

	"github.com/mongiaK/openvswitch/internal/log"
)

// EventBus is the publish/subscribe contract.
type EventBus interface {
	Publish(event *Event) error
	Subscribe(topic string, handler Handler) error
	Close() error
	GetStats() *Stats
}

// Stats is a point-in-time view of bus activity.
type Stats struct {
	PublishedCount int64
	ProcessedCount int64
	FailedCount    int64
	PartitionCount int
	QueuedCount    []int
}

// InMemoryEventBus is an EventBus backed by buffered channels.
type InMemoryEventBus struct {
	partitions     []*partition
	partitionNodes []string
	hashRing       *hashring.HashRing

	mu          sync.RWMutex
	subscribers map[string]Handler
	closed      bool
	wg          sync.WaitGroup

	publishedCount atomic.Int64
	processedCount atomic.Int64
	failedCount    atomic.Int64
}

// NewInMemoryEventBus starts a bus with partitionCount partitions of
// queueSize events each.
func NewInMemoryEventBus(partitionCount, queueSize int) *InMemoryEventBus {
	if partitionCount <= 0 {
		partitionCount = 1
	}
	bus := &InMemoryEventBus{
		partitions:     make([]*partition, partitionCount),
		partitionNodes: make([]string, partitionCount),
		subscribers:    make(map[string]Handler),
	}

	for i := 0; i < partitionCount; i++ {
		bus.partitionNodes[i] = "partition-" + strconv.Itoa(i)
	}
	bus.hashRing = hashring.New(bus.partitionNodes)

	for i := 0; i < partitionCount; i++ {
		bus.partitions[i] = &partition{
			id:    i,
			queue: make(chan *Event, queueSize),
		}
		bus.wg.Add(1)
		go bus.runPartition(bus.partitions[i])
	}

	return bus
}

// Publish queues event on the partition owning its key. It never blocks: a
// full partition rejects the event with ErrQueueFull.
func (b *InMemoryEventBus) Publish(event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	partitionID := b.getPartitionID(event.Key)
	select {
	case b.partitions[partitionID].queue <- event:
		b.publishedCount.Add(1)
		return nil
	default:
		return fmt.Errorf("partition %d: %w", partitionID, ErrQueueFull)
	}
}

// Subscribe sets the handler for topic, replacing any previous one.
func (b *InMemoryEventBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.subscribers[topic] = handler

	log.GetLogger().Debugf("subscribed to topic: %s", topic)
	return nil
}

// Close stops accepting events, delivers everything already queued and waits
// for the partition goroutines to exit.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, p := range b.partitions {
		close(p.queue)
	}
	b.mu.Unlock()

	b.wg.Wait()
	log.GetLogger().Debug("event bus closed")
	return nil
}

// GetStats returns the current counters.
func (b *InMemoryEventBus) GetStats() *Stats {
	stats := &Stats{
		PublishedCount: b.publishedCount.Load(),
		ProcessedCount: b.processedCount.Load(),
		FailedCount:    b.failedCount.Load(),
		PartitionCount: len(b.partitions),
		QueuedCount:    make([]int, len(b.partitions)),
	}
	for i, p := range b.partitions {
		stats.QueuedCount[i] = len(p.queue)
	}
	return stats
}

// getPartitionID maps key to a partition through the hash ring.
func (b *InMemoryEventBus) getPartitionID(key string) int {
	node, ok := b.hashRing.GetNode(key)
	if !ok {
		return 0
	}
	for i, partitionNode := range b.partitionNodes {
		if partitionNode == node {
			return i
		}
	}
	return 0
}

func (b *InMemoryEventBus) getHandler(topic string) (Handler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.subscribers[topic]
	return h, ok
}

// runPartition consumes one partition until its queue is closed and drained.
func (b *InMemoryEventBus) runPartition(p *partition) {
	defer b.wg.Done()
	logger := log.GetLogger()

	for event := range p.queue {
		handler, ok := b.getHandler(event.Topic)
		if !ok {
			logger.Debugf("no handler for topic: %s", event.Topic)
			continue
		}
		if err := handler(event); err != nil {
			b.failedCount.Add(1)
			logger.WithError(err).Errorf("failed to handle %s event in partition %d", event.Topic, p.id)
			continue
		}
		b.processedCount.Add(1)
	}
}
