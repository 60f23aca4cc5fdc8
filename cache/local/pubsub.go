package local

import (
	"context"
	"sync"
)

// Message is one notification delivered to a subscriber.
type Message struct {
	Channel string
	Payload string
}

type subscription struct {
	ch       chan Message
	channels []string
}

// PubSub fans notifications out to in-process subscribers.
type PubSub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	bufSize int
}

// NewPubSub creates a PubSub; each subscriber gets a buffer of bufSize
// messages (256 when unset).
func NewPubSub(bufSize int) *PubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &PubSub{
		subs:    make(map[string]map[*subscription]struct{}),
		bufSize: bufSize,
	}
}

// Publish delivers message to every current subscriber of channel. A
// subscriber whose buffer is full misses the message; the publisher never
// blocks.
func (ps *PubSub) Publish(_ context.Context, channel, message string) error {
	msg := Message{Channel: channel, Payload: message}
	// The read lock keeps unsubscribe from closing a channel mid-send.
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for sub := range ps.subs[channel] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe starts receiving on channels. The returned channel is closed
// after cancel is called or ctx is done.
func (ps *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan Message, func(), error) {
	sub := &subscription{ch: make(chan Message, ps.bufSize), channels: channels}

	ps.mu.Lock()
	for _, name := range channels {
		set, ok := ps.subs[name]
		if !ok {
			set = make(map[*subscription]struct{})
			ps.subs[name] = set
		}
		set[sub] = struct{}{}
	}
	ps.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			ps.unsubscribe(sub)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return sub.ch, cancel, nil
}

func (ps *PubSub) unsubscribe(sub *subscription) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, name := range sub.channels {
		delete(ps.subs[name], sub)
		if len(ps.subs[name]) == 0 {
			delete(ps.subs, name)
		}
	}
	close(sub.ch)
}

// Subscribers reports how many subscriptions are listening on channel.
func (ps *PubSub) Subscribers(channel string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subs[channel])
}
