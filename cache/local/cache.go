package local

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("cache: key not found")
	// ErrWrongType is returned when a key holds a different kind of value.
	ErrWrongType = errors.New("cache: operation against a key holding the wrong kind of value")
)

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

type kind int

const (
	kindString kind = iota
	kindHash
	kindSet
	kindList
)

// item is one key of any kind with an optional expiry.
type item struct {
	kind     kind
	str      string
	hash     map[string]string
	set      map[string]struct{}
	list     []string
	expireAt time.Time // zero: no expiry
}

func (it *item) expired(now time.Time) bool {
	return !it.expireAt.IsZero() && now.After(it.expireAt)
}

// LocalCache is an in-process cache with a single keyspace, so that Del,
// Exists and Expire behave the same for every kind of value.
type LocalCache struct {
	mu         sync.Mutex
	items      map[string]*item
	gcInterval time.Duration
	stopGC     chan struct{}
	closeOnce  sync.Once
}

// NewCache creates a LocalCache and starts the background GC goroutine.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		items:      make(map[string]*item),
		gcInterval: interval,
		stopGC:     make(chan struct{}),
	}
	go c.runGC()
	return c, nil
}

// Close stops the background GC goroutine.
func (c *LocalCache) Close() error {
	c.closeOnce.Do(func() { close(c.stopGC) })
	return nil
}

func (c *LocalCache) runGC() {
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, it := range c.items {
				if it.expired(now) {
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		case <-c.stopGC:
			return
		}
	}
}

// lookup returns the live item for key. Caller holds c.mu.
func (c *LocalCache) lookup(key string) *item {
	it, ok := c.items[key]
	if !ok {
		return nil
	}
	if it.expired(time.Now()) {
		delete(c.items, key)
		return nil
	}
	return it
}

// lookupKind returns the live item for key, creating it when create is set.
// Caller holds c.mu.
func (c *LocalCache) lookupKind(key string, k kind, create bool) (*item, error) {
	it := c.lookup(key)
	if it == nil {
		if !create {
			return nil, nil
		}
		it = &item{kind: k}
		switch k {
		case kindHash:
			it.hash = make(map[string]string)
		case kindSet:
			it.set = make(map[string]struct{})
		}
		c.items[key] = it
		return it, nil
	}
	if it.kind != k {
		return nil, ErrWrongType
	}
	return it, nil
}

// ---- KV ----

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, err := c.lookupKind(key, kindString, false)
	if err != nil {
		return "", err
	}
	if it == nil {
		return "", ErrNotFound
	}
	return it.str, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	it := &item{kind: kindString, str: value}
	if ttl > 0 {
		it.expireAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = it
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key) != nil, nil
}

func (c *LocalCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.lookup(key)
	if it == nil {
		return ErrNotFound
	}
	if ttl <= 0 {
		delete(c.items, key)
		return nil
	}
	it.expireAt = time.Now().Add(ttl)
	return nil
}

// ---- Hash ----

func (c *LocalCache) HSet(_ context.Context, key, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, err := c.lookupKind(key, kindHash, true)
	if err != nil {
		return err
	}
	it.hash[field] = value
	return nil
}

func (c *LocalCache) HSetAll(_ context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	it, err := c.lookupKind(key, kindHash, true)
	if err != nil {
		return err
	}
	for f, v := range fields {
		it.hash[f] = v
	}
	return nil
}

func (c *LocalCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, err := c.lookupKind(key, kindHash, false)
	if err != nil {
		return nil, err
	}
	result := make(map[string]string)
	if it != nil {
		for f, v := range it.hash {
			result[f] = v
		}
	}
	return result, nil
}

func (c *LocalCache) HDel(_ context.Context, key string, fields ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, err := c.lookupKind(key, kindHash, false)
	if err != nil || it == nil {
		return err
	}
	for _, f := range fields {
		delete(it.hash, f)
	}
	if len(it.hash) == 0 {
		delete(c.items, key)
	}
	return nil
}

// ---- Set ----

func (c *LocalCache) SAdd(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, err := c.lookupKind(key, kindSet, true)
	if err != nil {
		return err
	}
	for _, m := range members {
		it.set[m] = struct{}{}
	}
	return nil
}

func (c *LocalCache) SRem(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, err := c.lookupKind(key, kindSet, false)
	if err != nil || it == nil {
		return err
	}
	for _, m := range members {
		delete(it.set, m)
	}
	if len(it.set) == 0 {
		delete(c.items, key)
	}
	return nil
}

func (c *LocalCache) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, err := c.lookupKind(key, kindSet, false)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return []string{}, nil
	}
	result := make([]string, 0, len(it.set))
	for m := range it.set {
		result = append(result, m)
	}
	return result, nil
}

// ---- List ----

func (c *LocalCache) LPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, err := c.lookupKind(key, kindList, true)
	if err != nil {
		return err
	}
	// Last value ends up at index 0, as with Redis.
	head := make([]string, 0, len(values)+len(it.list))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	it.list = append(head, it.list...)
	return nil
}

func (c *LocalCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, err := c.lookupKind(key, kindList, false)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return []string{}, nil
	}
	lo, hi, ok := listBounds(int64(len(it.list)), start, stop)
	if !ok {
		return []string{}, nil
	}
	result := make([]string, hi-lo+1)
	copy(result, it.list[lo:hi+1])
	return result, nil
}

func (c *LocalCache) LTrim(_ context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, err := c.lookupKind(key, kindList, false)
	if err != nil || it == nil {
		return err
	}
	lo, hi, ok := listBounds(int64(len(it.list)), start, stop)
	if !ok {
		delete(c.items, key)
		return nil
	}
	it.list = append([]string(nil), it.list[lo:hi+1]...)
	return nil
}

// listBounds resolves Redis-style indexes (negative counts from the end).
func listBounds(n, start, stop int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
