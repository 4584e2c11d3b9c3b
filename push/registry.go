// Package push keeps the live, in-memory map from user id to the one open
// outbound event channel for that user.
package push

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	EventMessage        = "message"
	EventMessageDeleted = "messageDeleted"

	shardCount = 32

	DefaultBufferSize = 64
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Publisher is the side of the registry the dispatcher depends on.
type Publisher interface {
	Publish(userID string, event Event) bool
}

// Channel is one registered connection. Events is never closed; Done is
// closed once the channel stops being the user's live entry.
type Channel struct {
	seq    uint64
	userID string
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (c *Channel) UserID() string { return c.userID }

func (c *Channel) Events() <-chan Event { return c.events }

func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) close() bool {
	closed := false
	c.once.Do(func() {
		close(c.done)
		closed = true
	})
	return closed
}

type shard struct {
	mu       sync.Mutex
	channels map[string]*Channel
}

type Registry struct {
	shards     [shardCount]shard
	bufferSize int
	seq        atomic.Uint64
	metrics    *Metrics
	log        *zap.Logger
}

type Options struct {
	// BufferSize bounds each channel's queue. A publish to a full queue
	// evicts the channel.
	BufferSize int
	Metrics    *Metrics
	Log        *zap.Logger
}

func NewRegistry(opts Options) *Registry {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	r := &Registry{
		bufferSize: opts.BufferSize,
		metrics:    opts.Metrics,
		log:        opts.Log,
	}
	for i := range r.shards {
		r.shards[i].channels = make(map[string]*Channel)
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &r.shards[h.Sum32()%shardCount]
}

// Register opens a channel for userID, closing and replacing any previous one.
func (r *Registry) Register(userID string) *Channel {
	ch := &Channel{
		seq:    r.seq.Add(1),
		userID: userID,
		events: make(chan Event, r.bufferSize),
		done:   make(chan struct{}),
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	prev, replaced := s.channels[userID]
	s.channels[userID] = ch
	s.mu.Unlock()

	if replaced {
		prev.close()
		r.log.Debug("push channel replaced", zap.String("user", userID))
	} else {
		r.metrics.online(1)
	}
	r.log.Debug("push channel registered", zap.String("user", userID), zap.Uint64("seq", ch.seq))
	return ch
}

// Unregister removes whatever channel userID has. Safe to call repeatedly.
func (r *Registry) Unregister(userID string) {
	s := r.shardFor(userID)
	s.mu.Lock()
	ch, ok := s.channels[userID]
	if ok {
		delete(s.channels, userID)
	}
	s.mu.Unlock()

	if ok {
		ch.close()
		r.metrics.online(-1)
		r.log.Debug("push channel unregistered", zap.String("user", userID))
	}
}

// UnregisterChannel removes ch only while it is still the user's live entry,
// so a late disconnect of a replaced connection leaves the newer one alone.
func (r *Registry) UnregisterChannel(ch *Channel) {
	s := r.shardFor(ch.userID)
	s.mu.Lock()
	current, ok := s.channels[ch.userID]
	owned := ok && current == ch
	if owned {
		delete(s.channels, ch.userID)
	}
	s.mu.Unlock()

	ch.close()
	if owned {
		r.metrics.online(-1)
		r.log.Debug("push channel released", zap.String("user", ch.userID), zap.Uint64("seq", ch.seq))
	}
}

// Publish queues event for userID without blocking. It reports false when the
// user has no channel or the channel's queue was full, in which case the
// channel is evicted.
func (r *Registry) Publish(userID string, event Event) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	ch, ok := s.channels[userID]
	if !ok {
		s.mu.Unlock()
		r.metrics.missed(event.Type)
		r.log.Debug("push recipient offline", zap.String("user", userID), zap.String("event", event.Type))
		return false
	}

	select {
	case ch.events <- event:
		s.mu.Unlock()
		r.metrics.delivered(event.Type)
		return true
	default:
	}

	delete(s.channels, userID)
	s.mu.Unlock()

	ch.close()
	r.metrics.online(-1)
	r.metrics.evicted()
	r.metrics.missed(event.Type)
	r.log.Warn("push channel queue full, evicting",
		zap.String("user", userID),
		zap.Int("buffer", r.bufferSize),
	)
	return false
}

func (r *Registry) Online(userID string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[userID]
	return ok
}

func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.channels)
		s.mu.Unlock()
	}
	return n
}

// CloseAll drops every channel. Used on shutdown.
func (r *Registry) CloseAll() {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		channels := s.channels
		s.channels = make(map[string]*Channel)
		s.mu.Unlock()

		for _, ch := range channels {
			ch.close()
			r.metrics.online(-1)
		}
	}
}
