package cache

// Cache is a generic grow-only map from keys to values with stable integer
// indices.
//
// Indices are assigned in insertion order and are never reused, even after
// Delete. A deleted index simply stops resolving.
type Cache[K comparable, V any] struct {
	index   map[K]int
	entries []cacheEntry[K, V]

	live   int
	hits   uint64
	misses uint64
}

// cacheEntry holds a cached value with its key.
type cacheEntry[K comparable, V any] struct {
	key   K
	value V
	live  bool
}

// New creates an empty cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		index: make(map[K]int),
	}
}

// Ensure returns the index for key, calling create on first use.
// If create fails nothing is stored and the error is returned as is.
func (c *Cache[K, V]) Ensure(key K, create func() (V, error)) (int, error) {
	if i, ok := c.index[key]; ok {
		c.hits++
		return i, nil
	}
	c.misses++

	value, err := create()
	if err != nil {
		return -1, err
	}

	i := len(c.entries)
	c.entries = append(c.entries, cacheEntry[K, V]{key: key, value: value, live: true})
	c.index[key] = i
	c.live++
	return i, nil
}

// Index returns the index for key without creating it.
func (c *Cache[K, V]) Index(key K) (int, bool) {
	i, ok := c.index[key]
	return i, ok
}

// Get retrieves a value by key.
// Returns (value, true) if found, (zero, false) otherwise.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	if i, ok := c.index[key]; ok {
		return c.entries[i].value, true
	}
	var zero V
	return zero, false
}

// At retrieves a value by index.
func (c *Cache[K, V]) At(i int) (V, bool) {
	if i < 0 || i >= len(c.entries) || !c.entries[i].live {
		var zero V
		return zero, false
	}
	return c.entries[i].value, true
}

// Delete removes an entry and returns its value so the caller can release it.
func (c *Cache[K, V]) Delete(key K) (V, bool) {
	i, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return c.drop(i), true
}

// DeleteFunc removes every entry for which fn returns true and returns the
// removed values.
func (c *Cache[K, V]) DeleteFunc(fn func(K, V) bool) []V {
	var removed []V
	for i := range c.entries {
		e := &c.entries[i]
		if e.live && fn(e.key, e.value) {
			removed = append(removed, c.drop(i))
		}
	}
	return removed
}

func (c *Cache[K, V]) drop(i int) V {
	e := &c.entries[i]
	v := e.value
	delete(c.index, e.key)
	var zero V
	e.value = zero
	e.live = false
	c.live--
	return v
}

// Range calls fn for every live entry in index order until fn returns false.
func (c *Cache[K, V]) Range(fn func(K, V) bool) {
	for i := range c.entries {
		e := &c.entries[i]
		if e.live && !fn(e.key, e.value) {
			return
		}
	}
}

// Len returns the number of live entries in the cache.
func (c *Cache[K, V]) Len() int {
	return c.live
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Len:    c.live,
		Hits:   c.hits,
		Misses: c.misses,
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Hits is the number of Ensure calls served from the cache.
	Hits uint64
	// Misses is the number of Ensure calls that invoked create.
	Misses uint64
}
