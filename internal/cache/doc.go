// Package cache provides the index-addressed, grow-only cache used for GPU
// pipelines and bind groups.
//
// Entries are created lazily through Ensure and are never evicted. Every key
// gets a stable integer index on first insertion, so hot loops can resolve
// keys once and then compare plain integers to detect state changes:
//
//	c := cache.New[pipelineKey, hal.RenderPipeline]()
//	idx, err := c.Ensure(key, func() (hal.RenderPipeline, error) { ... })
//	pipeline, _ := c.At(idx)
//
// # Thread Safety
//
// Cache is not safe for concurrent use. It is owned by a single renderer and
// accessed from the goroutine that drives frames.
package cache
