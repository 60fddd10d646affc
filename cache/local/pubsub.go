package local

import (
	"context"
	"sync"
	"sync/atomic"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscriber struct {
	ch       chan *LocalMessage
	channels []string
	once     sync.Once
}

// LocalPubSub is an in-process fan-out pub/sub implementation. Slow
// subscribers lose messages instead of blocking publishers.
type LocalPubSub struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	bufSize     int
	dropped     atomic.Uint64
}

// NewPubSub creates a new LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subscribers: make(map[string][]*subscriber),
		bufSize:     bufSize,
	}
}

// Publish sends a message to all subscribers of the given channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	// Sending under the read lock keeps cancel from closing a channel mid-send.
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, s := range ps.subscribers[channel] {
		select {
		case s.ch <- msg:
		default:
			ps.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe returns a channel of messages for the given channels and a cancel
// function. The channel is also closed when ctx is done.
func (ps *LocalPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	s := &subscriber{ch: make(chan *LocalMessage, ps.bufSize), channels: channels}

	ps.mu.Lock()
	for _, c := range channels {
		ps.subscribers[c] = append(ps.subscribers[c], s)
	}
	ps.mu.Unlock()

	cancel := func() { ps.remove(s) }
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return s.ch, cancel, nil
}

// Dropped returns how many messages were discarded because a subscriber
// buffer was full.
func (ps *LocalPubSub) Dropped() uint64 { return ps.dropped.Load() }

// Close unsubscribes everyone.
func (ps *LocalPubSub) Close() error {
	ps.mu.RLock()
	var all []*subscriber
	for _, list := range ps.subscribers {
		all = append(all, list...)
	}
	ps.mu.RUnlock()
	for _, s := range all {
		ps.remove(s)
	}
	return nil
}

func (ps *LocalPubSub) remove(s *subscriber) {
	s.once.Do(func() {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		for _, c := range s.channels {
			list := ps.subscribers[c]
			for j, sub := range list {
				if sub == s {
					ps.subscribers[c] = append(list[:j:j], list[j+1:]...)
					break
				}
			}
			if len(ps.subscribers[c]) == 0 {
				delete(ps.subscribers, c)
			}
		}
		close(s.ch)
	})
}
