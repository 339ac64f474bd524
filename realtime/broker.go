package realtime

import (
	"context"
	"sync"
)

// Broker fans envelopes out to every subscribed hub, including the publisher's own.
type Broker interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe returns a channel closed when ctx ends or the broker closes
	Subscribe(ctx context.Context) (<-chan []byte, error)
	Close() error
}

// LocalBroker is an in-process Broker for single-process deployments and tests.
type LocalBroker struct {
	mu     sync.RWMutex
	subs   map[chan []byte]struct{}
	closed bool
}

// NewLocalBroker creates an in-process broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[chan []byte]struct{})}
}

// Publish delivers payload to every subscriber. Full subscriber buffers drop the message.
func (b *LocalBroker) Publish(ctx context.Context, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrHubStopped
	}
	for ch := range b.subs {
		select {
		case ch <- payload:
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber until ctx is done.
func (b *LocalBroker) Subscribe(ctx context.Context) (<-chan []byte, error) {
	ch := make(chan []byte, sendChannelSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrHubStopped
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch, nil
}

func (b *LocalBroker) remove(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close closes every subscription.
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}
