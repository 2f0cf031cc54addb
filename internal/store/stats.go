package store

// Stats holds statistics about a blob store.
type Stats struct {
	Blobs       uint64 // blobs appended by this handle
	BytesStored uint64 // bytes of framed blob data, including uncommitted appends
	Commits     uint64 // commits recorded in the store, across handles for file stores
	LastID      ID

	// Paged file only
	PageSize  int
	FileSize  int64
	Pages     int64
	Syncs     uint64
	CacheHits uint64
	CacheMiss uint64
}
