// Package cache provides query result caching keyed by statement text and
// parameters, with table-level invalidation.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stats represents cache statistics
type Stats struct {
	Hits          int64
	Misses        int64
	Size          int
	MaxSize       int
	Evictions     int64
	Invalidations int64
	HitRate       float64
}

// QueryCache is an LRU cache for read-statement results with TTL support.
// Every entry is tagged with the set of tables its statement touched, so a
// write to any of those tables can evict exactly the entries it may have
// stale-ified. Rows are deep-copied on the way in and on the way out; a
// caller mutating a result map can never corrupt a cached copy.
type QueryCache struct {
	mu      sync.Mutex
	data    map[string]*cacheNode
	maxSize int
	ttl     time.Duration
	enabled bool
	head    *cacheNode
	tail    *cacheNode
	stats   Stats
}

// cacheNode represents a node in the doubly-linked list for LRU
type cacheNode struct {
	key       string
	rows      []map[string]interface{}
	tables    map[string]bool
	expiresAt time.Time
	prev      *cacheNode
	next      *cacheNode
}

// New creates a query cache. A non-positive ttl means entries only leave by
// eviction or invalidation.
func New(maxSize int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		data:    make(map[string]*cacheNode),
		maxSize: maxSize,
		ttl:     ttl,
		enabled: true,
		stats:   Stats{MaxSize: maxSize},
	}
}

// Key derives a deterministic cache key from a statement and its parameters.
// Parameter names are sorted before hashing, so the key never depends on map
// iteration order. Two compilations of the same logical query share a key.
// Values hash with their dynamic type so 1 and "1" never collide.
func Key(sql string, params map[string]interface{}) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	hasher := sha256.New()
	hasher.Write([]byte(sql))
	for _, name := range names {
		fmt.Fprintf(hasher, "|%s=%T:%v", name, params[name], params[name])
	}
	return hex.EncodeToString(hasher.Sum(nil))[:32]
}

// Get retrieves a cached result. The returned rows are a fresh copy.
func (c *QueryCache) Get(key string) ([]map[string]interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return nil, false
	}

	node, ok := c.data[key]
	if !ok {
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}

	if !node.expiresAt.IsZero() && time.Now().After(node.expiresAt) {
		c.removeNode(node)
		c.stats.Size = len(c.data)
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}

	c.moveToFront(node)
	c.stats.Hits++
	c.updateHitRate()
	return copyRows(node.rows), true
}

// Put stores a result under the given key, tagged with the tables the
// statement read from. The rows are copied before storage.
func (c *QueryCache) Put(key string, tables []string, rows []map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	tagged := make(map[string]bool, len(tables))
	for _, t := range tables {
		tagged[t] = true
	}

	if node, exists := c.data[key]; exists {
		node.rows = copyRows(rows)
		node.tables = tagged
		node.expiresAt = expiresAt
		c.moveToFront(node)
		return
	}

	if len(c.data) >= c.maxSize {
		c.evictLRU()
		c.stats.Evictions++
	}

	node := &cacheNode{
		key:       key,
		rows:      copyRows(rows),
		tables:    tagged,
		expiresAt: expiresAt,
	}
	c.addToFront(node)
	c.data[key] = node
	c.stats.Size = len(c.data)
}

// InvalidateTables drops every entry whose table set intersects the given
// tables. Writes call this with the written statement's table set.
func (c *QueryCache) InvalidateTables(tables ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*cacheNode
	for _, node := range c.data {
		for _, t := range tables {
			if node.tables[t] {
				toRemove = append(toRemove, node)
				break
			}
		}
	}
	for _, node := range toRemove {
		c.removeNode(node)
	}
	c.stats.Invalidations += int64(len(toRemove))
	c.stats.Size = len(c.data)
}

// Clear removes all entries and resets the counters.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*cacheNode)
	c.head = nil
	c.tail = nil
	c.stats = Stats{MaxSize: c.maxSize}
}

// SetEnabled turns the cache on or off. Disabling also clears it, so stale
// results cannot surface after re-enabling.
func (c *QueryCache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = enabled
	if !enabled {
		c.data = make(map[string]*cacheNode)
		c.head = nil
		c.tail = nil
		c.stats.Size = 0
	}
}

// Enabled reports whether the cache is active.
func (c *QueryCache) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetTTL changes the TTL applied to entries stored from now on.
func (c *QueryCache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// GetStats returns cache statistics
func (c *QueryCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.data)
	return stats
}

// addToFront adds a node to the front of the list
func (c *QueryCache) addToFront(node *cacheNode) {
	if c.head == nil {
		c.head = node
		c.tail = node
		return
	}
	node.next = c.head
	c.head.prev = node
	c.head = node
}

// moveToFront moves a node to the front of the list
func (c *QueryCache) moveToFront(node *cacheNode) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	node.prev = nil
	node.next = nil
	c.addToFront(node)
	c.data[node.key] = node
}

// removeNode unlinks a node and drops it from the index
func (c *QueryCache) removeNode(node *cacheNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	delete(c.data, node.key)
}

// evictLRU evicts the least recently used node
func (c *QueryCache) evictLRU() {
	if c.tail == nil {
		return
	}
	c.removeNode(c.tail)
}

func (c *QueryCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total) * 100
	}
}

func copyRows(rows []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		out[i] = copyMap(row)
	}
	return out
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	dup := make(map[string]interface{}, len(m))
	for k, v := range m {
		dup[k] = copyValue(v)
	}
	return dup
}

// copyValue recurses into the container shapes a decoded row can hold, so
// nested JSON values and blobs are never shared with callers.
func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyMap(val)
	case []interface{}:
		dup := make([]interface{}, len(val))
		for i, item := range val {
			dup[i] = copyValue(item)
		}
		return dup
	case []byte:
		dup := make([]byte, len(val))
		copy(dup, val)
		return dup
	}
	return v
}

// TablesOf extracts the referenced table names from a statement by scanning
// for the keywords that introduce them. It is the fallback for statements
// that do not carry an explicit table set.
func TablesOf(sql string) []string {
	fields := strings.Fields(sql)
	seen := map[string]bool{}
	var tables []string
	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToUpper(fields[i]) {
		case "FROM", "JOIN", "INTO", "UPDATE":
			name := strings.Trim(fields[i+1], `"(),;`)
			if name == "" || strings.HasPrefix(name, "SELECT") || strings.HasPrefix(name, ":") {
				continue
			}
			if !seen[name] {
				seen[name] = true
				tables = append(tables, name)
			}
		}
	}
	sort.Strings(tables)
	return tables
}
