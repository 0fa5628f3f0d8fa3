// Package dedupe tracks keys of pending work so the same video is not
// queued twice while an earlier request for it is still outstanding.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// Deduper records keys for at-most-once scheduling.
type Deduper interface {
	// SeenAndRecord reports whether key is already recorded, recording it
	// when it is not.
	SeenAndRecord(ctx context.Context, key string) bool
	// Unrecord forgets key so it can be scheduled again. Call it once the
	// work finished or could not be scheduled.
	Unrecord(ctx context.Context, key string)
	// Contains reports whether key is recorded, without recording it.
	Contains(ctx context.Context, key string) bool
	Size() int64
}

// inMemoryDeduper keeps keys in insertion order. When bounded and full the
// oldest key is evicted to make room.
type inMemoryDeduper struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List
	keys    map[string]*list.Element
}

// NewInMemoryDeduper creates a deduper. The default bound is 50000 keys.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.order = list.New()
	d.keys = make(map[string]*list.Element)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.keys[key]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.keys, oldest.Value.(string))
	}
	d.keys[key] = d.order.PushBack(key)
	return false
}

func (d *inMemoryDeduper) Unrecord(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.keys[key]; ok {
		d.order.Remove(el)
		delete(d.keys, key)
	}
}

func (d *inMemoryDeduper) Contains(ctx context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.keys[key]
	return ok
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
