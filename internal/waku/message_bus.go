package waku

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// historyLimit bounds the per-topic backlog the mock transport keeps for
// fetches.
const historyLimit = 1024

// messageBus is the in-process relay used by the mock transport. All nodes in
// the process share it, like peers on one pubsub topic.
type messageBus struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers map[uint64]busSubscriber
	backlog     map[string][]RelayMessage
}

type busSubscriber struct {
	topic   string
	handler func(RelayMessage)
}

var globalBus = newMessageBus()

func newMessageBus() *messageBus {
	return &messageBus{
		subscribers: make(map[uint64]busSubscriber),
		backlog:     make(map[string][]RelayMessage),
	}
}

func (b *messageBus) publish(msg RelayMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	log := append(b.backlog[msg.ContentTopic], msg)
	if len(log) > historyLimit {
		log = append([]RelayMessage(nil), log[len(log)-historyLimit:]...)
	}
	b.backlog[msg.ContentTopic] = log
	for _, sub := range b.subscribers {
		if sub.topic == msg.ContentTopic {
			go sub.handler(msg)
		}
	}
}

func (b *messageBus) subscribe(topic string, handler func(RelayMessage)) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subscribers[b.nextID] = busSubscriber{topic: topic, handler: handler}
	return b.nextID
}

func (b *messageBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// history returns messages on topic newer than since, newest first.
func (b *messageBus) history(topic string, since time.Time, limit int) []RelayMessage {
	b.mu.Lock()
	log := append([]RelayMessage(nil), b.backlog[topic]...)
	b.mu.Unlock()

	cutoff := since.UnixNano()
	out := make([]RelayMessage, 0, len(log))
	for _, msg := range log {
		if !since.IsZero() && msg.Timestamp < cutoff {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func messageID(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
