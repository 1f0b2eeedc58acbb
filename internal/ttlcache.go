package internal

import (
	"sync"
	"time"
)

type cachedItem struct {
	value  int
	expiry time.Time
}

func (item cachedItem) expired() bool {
	return time.Now().After(item.expiry)
}

type cachedItems map[string]cachedItem

// TTLCache is a set of counters that reset themselves once they have not
// been touched for ttl.
type TTLCache struct {
	sync.RWMutex

	ttl   time.Duration
	items map[string]cachedItem
	quit  chan struct{}
	once  sync.Once
}

func (cache *TTLCache) Dec(k string) int {
	return cache.Add(k, -1)
}

func (cache *TTLCache) Inc(k string) int {
	return cache.Add(k, 1)
}

// Add adds n to the counter for k and returns the new value
func (cache *TTLCache) Add(k string, n int) int {
	cache.Lock()
	defer cache.Unlock()

	v := n
	if item, ok := cache.items[k]; ok && !item.expired() {
		v += item.value
	}
	cache.items[k] = cachedItem{v, time.Now().Add(cache.ttl)}

	return v
}

func (cache *TTLCache) Get(k string) int {
	cache.RLock()
	defer cache.RUnlock()
	v, ok := cache.items[k]
	if !ok || v.expired() {
		return 0
	}
	return v.value
}

func (cache *TTLCache) Set(k string, v int) int {
	cache.Lock()
	defer cache.Unlock()

	cache.items[k] = cachedItem{v, time.Now().Add(cache.ttl)}

	return v
}

func (cache *TTLCache) Reset(k string) int {
	return cache.Set(k, 0)
}

// Stop stops the background expiry loop
func (cache *TTLCache) Stop() {
	cache.once.Do(func() { close(cache.quit) })
}

func (cache *TTLCache) expire() {
	cache.Lock()
	defer cache.Unlock()
	for k, v := range cache.items {
		if v.expired() {
			delete(cache.items, k)
		}
	}
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	cache := &TTLCache{ttl: ttl, items: make(cachedItems), quit: make(chan struct{})}

	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cache.expire()
			case <-cache.quit:
				return
			}
		}
	}()

	return cache
}
