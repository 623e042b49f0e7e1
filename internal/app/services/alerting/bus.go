package alerting

import (
	"sync"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/alert"
)

// Bus fans alerts out to in-process subscribers, such as connected
// websocket clients. Slow subscribers drop events rather than block the
// dispatcher.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan alert.Alert
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan alert.Alert)}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called to release it.
func (b *Bus) Subscribe() (<-chan alert.Alert, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan alert.Alert, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish delivers the alert to every subscriber without blocking.
func (b *Bus) Publish(a alert.Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- a:
		default:
		}
	}
}
