package store

import (
	"sync"
	"sync/atomic"
)

const blobCacheShards = 64

// BlobCache is a sharded FIFO cache of blob payloads bounded by bytes.
// Blobs are immutable once appended, so entries never need invalidating
// while the owning store is open.
type BlobCache struct {
	shards      [blobCacheShards]*blobCacheShard
	maxPerShard int64
	hits        uint64
	misses      uint64
}

type blobCacheShard struct {
	mu    sync.Mutex
	cache map[ID][]byte
	order []ID // FIFO order for eviction
	bytes int64
}

// NewBlobCache creates a cache holding at most maxBytes of payload.
func NewBlobCache(maxBytes int64) *BlobCache {
	bc := &BlobCache{maxPerShard: max(maxBytes/blobCacheShards, 1)}
	for i := range bc.shards {
		bc.shards[i] = &blobCacheShard{cache: make(map[ID][]byte)}
	}
	return bc
}

func (bc *BlobCache) shard(id ID) *blobCacheShard {
	// blob IDs are file offsets; mix the bits so neighbours spread out
	h := uint64(id) * 0x9E3779B97F4A7C15
	return bc.shards[h>>58]
}

// Get returns the cached payload for id, or nil.
func (bc *BlobCache) Get(id ID) []byte {
	s := bc.shard(id)
	s.mu.Lock()
	data, ok := s.cache[id]
	s.mu.Unlock()

	if ok {
		atomic.AddUint64(&bc.hits, 1)
		return data
	}
	atomic.AddUint64(&bc.misses, 1)
	return nil
}

// Put caches data under id. Payloads larger than a shard are not cached.
func (bc *BlobCache) Put(id ID, data []byte) {
	size := int64(len(data))
	if size > bc.maxPerShard {
		return
	}
	s := bc.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cache[id]; exists {
		return
	}
	for s.bytes+size > bc.maxPerShard && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		s.bytes -= int64(len(s.cache[oldest]))
		delete(s.cache, oldest)
	}
	s.cache[id] = data
	s.order = append(s.order, id)
	s.bytes += size
}

// Stats returns cache statistics.
func (bc *BlobCache) Stats() (hits, misses uint64, entries int, bytes int64) {
	hits = atomic.LoadUint64(&bc.hits)
	misses = atomic.LoadUint64(&bc.misses)
	for _, s := range bc.shards {
		s.mu.Lock()
		entries += len(s.cache)
		bytes += s.bytes
		s.mu.Unlock()
	}
	return
}

// Clear empties the cache.
func (bc *BlobCache) Clear() {
	for _, s := range bc.shards {
		s.mu.Lock()
		s.cache = make(map[ID][]byte)
		s.order = nil
		s.bytes = 0
		s.mu.Unlock()
	}
}
