// Package store provides a persistent ordered key/value tree on top of an
// append-only blob store.
//
// Storage Layers:
//   - BlobStore: framed, checksummed blobs addressed by offset, with one
//     durable root pointer updated by Commit
//   - PagedFileStore: a BlobStore in a single file grown in fixed-size pages
//   - MemStore: a BlobStore held in memory
//   - Tree: an in-memory btree whose inserts are persisted as sorted,
//     prefix-compressed segments chained from root nodes
//
// Checkpoints:
//   - Tree.Reattach writes one segment plus one root node and commits it
//   - the returned ID reopens exactly that state through Load
//   - anything appended after the last Commit is discarded on reopen
package store
