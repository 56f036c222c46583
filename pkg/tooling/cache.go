package tooling

import (
	"sync"

	"github.com/edwingeng/deque"
	"github.com/zeebo/blake3"

	"pascal/interpreter-go/pkg/source"
)

// Key identifies a source by content: a blake3 digest of its name and text.
type Key [32]byte

// KeyOf hashes src.
func KeyOf(src source.Source) Key {
	h := blake3.New()
	h.Write([]byte(src.Name))
	h.Write([]byte{0})
	h.Write([]byte(src.Text))
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// Result is a remembered check outcome.
type Result struct {
	Err     error
	Program string
	Units   int
}

// Cache is a bounded map of check results. When full, the oldest entry is
// evicted first. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	size    int
	entries map[Key]Result
	order   deque.Deque

	hits, misses int
}

// NewCache returns a cache holding at most size results. A size of zero
// or less yields a cache that remembers nothing.
func NewCache(size int) *Cache {
	return &Cache{size: size, entries: make(map[Key]Result), order: deque.NewDeque()}
}

// Get returns the result stored under k.
func (c *Cache) Get(k Key) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[k]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return res, ok
}

// Put stores res under k, evicting the oldest entries beyond the bound.
func (c *Cache) Put(k Key, res Result) {
	if c.size <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[k]; !ok {
		c.order.PushBack(k)
	}
	c.entries[k] = res
	for c.order.Len() > c.size {
		old := c.order.PopFront().(Key)
		delete(c.entries, old)
	}
}

// Len reports the number of stored results.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats reports lookups served and missed since creation.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
