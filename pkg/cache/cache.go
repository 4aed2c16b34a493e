package cache

import (
	"container/list"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is a cached response.
type Entry struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Expiry     time.Time
}

// node wraps an entry with its key for LRU bookkeeping.
type node struct {
	key   string
	entry Entry
}

// ResponseCache is a bounded, thread-safe LRU cache of upstream
// responses.
type ResponseCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List
	maxEntries int
	maxBody    int64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache holding at most maxEntries responses of at most
// maxBody body bytes each.
func New(maxEntries int, maxBody int64) *ResponseCache {
	return &ResponseCache{
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		maxBody:    maxBody,
	}
}

// Key builds the cache key for a request within an application.
func Key(appID string, r *http.Request) string {
	return appID + "\x00" + r.Method + "\x00" + r.Host + "\x00" + r.URL.RequestURI()
}

// Cacheable reports whether the exchange may be stored and for how
// long. A zero duration means not cacheable.
func Cacheable(r *http.Request, status int, header http.Header) time.Duration {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return 0
	}
	if status != http.StatusOK {
		return 0
	}
	if r.Header.Get("Authorization") != "" {
		return 0
	}

	cc := strings.ToLower(header.Get("Cache-Control"))
	if cc == "" || strings.Contains(cc, "no-store") || strings.Contains(cc, "no-cache") || strings.Contains(cc, "private") {
		return 0
	}
	for _, directive := range strings.Split(cc, ",") {
		directive = strings.TrimSpace(directive)
		if rest, ok := strings.CutPrefix(directive, "max-age="); ok {
			secs, err := strconv.Atoi(rest)
			if err != nil || secs <= 0 {
				return 0
			}
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

// Get returns a live cached response for the key.
func (c *ResponseCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return Entry{}, false
	}
	n := elem.Value.(*node)
	if time.Now().After(n.entry.Expiry) {
		c.lru.Remove(elem)
		delete(c.items, key)
		c.misses.Add(1)
		return Entry{}, false
	}
	c.lru.MoveToFront(elem)
	c.hits.Add(1)
	return n.entry, true
}

// Put stores a response unless its body exceeds the per-entry limit.
func (c *ResponseCache) Put(key string, entry Entry) {
	if int64(len(entry.Body)) > c.maxBody {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*node).entry = entry
		c.lru.MoveToFront(elem)
		return
	}
	for len(c.items) >= c.maxEntries {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.lru.Remove(back)
		delete(c.items, back.Value.(*node).key)
	}
	c.items[key] = c.lru.PushFront(&node{key: key, entry: entry})
}

// MaxBody returns the per-entry body size limit.
func (c *ResponseCache) MaxBody() int64 { return c.maxBody }

// Stats returns hit and miss counts.
func (c *ResponseCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
