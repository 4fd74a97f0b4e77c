package classifier

import (
	"sync"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 32

type subscriber struct {
	ch chan Result
}

// broadcaster fans results out to subscribers. There is no replay: a new
// subscriber sees only results published after Subscribe returns. A full
// subscriber channel drops the result rather than stalling the cycle.
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	buffer      int
	closed      bool
	onDrop      func()
}

func newBroadcaster(buffer int, onDrop func()) *broadcaster {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &broadcaster{
		subscribers: make(map[*subscriber]struct{}),
		buffer:      buffer,
		onDrop:      onDrop,
	}
}

// subscribe returns a result channel and a function that removes the
// subscription and closes the channel. The function is idempotent.
func (b *broadcaster) subscribe() (<-chan Result, func()) {
	sub := &subscriber{ch: make(chan Result, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subscribers[sub]; ok {
				delete(b.subscribers, sub)
				close(sub.ch)
			}
		})
	}
}

func (b *broadcaster) publish(r Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		select {
		case sub.ch <- r:
		default:
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// close ends every subscription. Later subscribers get a closed channel.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, sub)
	}
}
