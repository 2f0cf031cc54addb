package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Options configures OpenPagedFile.
type Options struct {
	PageSize   int            // bytes per page; 0 means DefaultPageSize for new files, the file's own size otherwise
	Create     bool           // create the file if it does not exist
	ReadOnly   bool           // open without the lock file; Append and Commit fail with ErrReadOnly
	CacheBytes int64          // blob read cache budget, default 64MB (negative disables)
	Owner      string         // recorded in the lock file, default a random UUID
	Logger     zerolog.Logger // default: disabled
}

// PagedFileStore is a BlobStore kept in a single file of fixed-size pages.
// A writable store holds an exclusive lock file for as long as it is open.
// Read-only handles never take the lock, so a store left locked by a
// crashed loader can still be reopened at its last commit.
type PagedFileStore struct {
	mu sync.Mutex

	fs       afero.Fs
	f        afero.File
	path     string
	pageSize int

	end     int64 // next append offset
	size    int64 // allocated file size, a multiple of pageSize
	last    ID    // last committed root
	commits uint64

	blobs uint64
	syncs uint64

	cache    *BlobCache
	log      zerolog.Logger
	readOnly bool
	closed   bool
}

// OpenPagedFile opens the store file at path, creating and initialising it
// when opts.Create is set.
func OpenPagedFile(fs afero.Fs, path string, opts Options) (*PagedFileStore, error) {
	if opts.PageSize != 0 && opts.PageSize < MinPageSize {
		return nil, fmt.Errorf("page size %d below %d: %w", opts.PageSize, MinPageSize, ErrPageSize)
	}
	if opts.CacheBytes == 0 {
		opts.CacheBytes = 64 * 1024 * 1024
	}
	if opts.Owner == "" {
		opts.Owner = uuid.NewString()
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !exists && (!opts.Create || opts.ReadOnly) {
		return nil, fmt.Errorf("%s: %w", path, ErrStoreNotFound)
	}

	flag := os.O_RDONLY
	if !opts.ReadOnly {
		if err := acquireLock(fs, path, opts.Owner); err != nil {
			return nil, err
		}
		flag = os.O_RDWR
		if opts.Create {
			flag |= os.O_CREATE
		}
	}
	f, err := fs.OpenFile(path, flag, 0644)
	if err != nil {
		if !opts.ReadOnly {
			releaseLock(fs, path)
		}
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrStoreNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &PagedFileStore{
		fs:       fs,
		f:        f,
		path:     path,
		log:      opts.Logger,
		readOnly: opts.ReadOnly,
	}
	if opts.CacheBytes > 0 {
		s.cache = NewBlobCache(opts.CacheBytes)
	}

	if err := s.init(opts.PageSize); err != nil {
		f.Close()
		if !opts.ReadOnly {
			releaseLock(fs, path)
		}
		return nil, err
	}

	s.log.Debug().
		Str("path", path).
		Bool("read_only", s.readOnly).
		Int("page_size", s.pageSize).
		Int64("end", s.end).
		Str("last_id", s.last.String()).
		Msg("opened paged store")
	return s, nil
}

// init reads the header page, or writes one if the file is empty.
func (s *PagedFileStore) init(pageSize int) error {
	info, err := s.f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.path, err)
	}

	if info.Size() == 0 {
		if s.readOnly {
			return fmt.Errorf("%s: empty file: %w", s.path, ErrCorrupt)
		}
		if pageSize == 0 {
			pageSize = DefaultPageSize
		}
		s.pageSize = pageSize
		s.end = int64(pageSize)
		s.size = int64(pageSize)
		if err := s.f.Truncate(s.size); err != nil {
			return fmt.Errorf("allocate header page: %w", err)
		}
		if err := s.writeHeader(); err != nil {
			return err
		}
		return s.sync()
	}

	buf := make([]byte, FileHeaderSize)
	if _, err := s.f.ReadAt(buf, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: header truncated: %w", s.path, ErrCorrupt)
		}
		return fmt.Errorf("read header: %w", err)
	}
	h, err := decodeFileHeader(buf)
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	if pageSize != 0 && uint32(pageSize) != h.PageSize {
		return fmt.Errorf("file has %d byte pages, opened with %d: %w", h.PageSize, pageSize, ErrPageSize)
	}
	if uint64(info.Size()) < h.End {
		return fmt.Errorf("%s: file is %d bytes, header end is %d: %w", s.path, info.Size(), h.End, ErrCorrupt)
	}

	s.pageSize = int(h.PageSize)
	s.end = int64(h.End)
	s.size = pagesFor(info.Size(), s.pageSize)
	s.last = h.LastID
	s.commits = h.Commits
	return nil
}

func (s *PagedFileStore) writeHeader() error {
	h := &FileHeader{
		PageSize: uint32(s.pageSize),
		End:      uint64(s.end),
		LastID:   s.last,
		Commits:  s.commits,
	}
	if _, err := s.f.WriteAt(encodeFileHeader(h), 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (s *PagedFileStore) sync() error {
	s.syncs++
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	return nil
}

// grow extends the file by whole pages until it can hold n more bytes.
func (s *PagedFileStore) grow(n int64) error {
	need := s.end + n
	if need <= s.size {
		return nil
	}
	size := pagesFor(need, s.pageSize)
	if err := s.f.Truncate(size); err != nil {
		return fmt.Errorf("grow %s to %d bytes: %w", s.path, size, err)
	}
	s.size = size
	return nil
}

func (s *PagedFileStore) Append(data []byte) (ID, error) {
	if len(data) > MaxBlobSize {
		return 0, fmt.Errorf("blob of %d bytes exceeds limit", len(data))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.readOnly {
		return 0, ErrReadOnly
	}

	frame := encodeFrame(data)
	if err := s.grow(int64(len(frame))); err != nil {
		return 0, err
	}
	if _, err := s.f.WriteAt(frame, s.end); err != nil {
		return 0, fmt.Errorf("append blob at %d: %w", s.end, err)
	}
	id := ID(s.end)
	s.end += int64(len(frame))
	s.blobs++
	return id, nil
}

func (s *PagedFileStore) Read(id ID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	if uint64(id) < uint64(s.pageSize) || uint64(id) > uint64(s.end)-frameHeaderSize {
		return nil, fmt.Errorf("blob %s outside [%d, %d): %w", id, s.pageSize, s.end, ErrDanglingRef)
	}
	if s.cache != nil {
		if data := s.cache.Get(id); data != nil {
			return data, nil
		}
	}

	var hdr [frameHeaderSize]byte
	if _, err := s.f.ReadAt(hdr[:], int64(id)); err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	length, checksum := decodeFrameHeader(hdr[:])
	start := int64(id) + frameHeaderSize
	if start+int64(length) > s.end {
		return nil, fmt.Errorf("blob %s length %d runs past end %d: %w", id, length, s.end, ErrDanglingRef)
	}
	payload := make([]byte, length)
	if _, err := s.f.ReadAt(payload, start); err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	if err := checkFrame(id, payload, checksum); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(id, payload)
	}
	return payload, nil
}

// Commit syncs appended blobs, then rewrites and syncs the header with root
// as the last ID.
func (s *PagedFileStore) Commit(root ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	if err := s.sync(); err != nil {
		return err
	}

	prevLast, prevCommits := s.last, s.commits
	s.last = root
	s.commits++
	if err := s.writeHeader(); err != nil {
		s.last, s.commits = prevLast, prevCommits
		return err
	}
	if err := s.sync(); err != nil {
		s.last, s.commits = prevLast, prevCommits
		return err
	}
	return nil
}

func (s *PagedFileStore) LastID() (ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last != 0
}

// PageSize returns the store's page size.
func (s *PagedFileStore) PageSize() int { return s.pageSize }

// Path returns the backing file path.
func (s *PagedFileStore) Path() string { return s.path }

func (s *PagedFileStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Blobs:       s.blobs,
		BytesStored: uint64(s.end - int64(s.pageSize)),
		Commits:     s.commits,
		LastID:      s.last,
		PageSize:    s.pageSize,
		FileSize:    s.size,
		Pages:       s.size / int64(s.pageSize),
		Syncs:       s.syncs,
	}
	if s.cache != nil {
		st.CacheHits, st.CacheMiss, _, _ = s.cache.Stats()
	}
	return st
}

// Close releases the file and its lock. It does not commit: blobs appended
// since the last Commit are lost, exactly as after a crash.
func (s *PagedFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cache != nil {
		s.cache.Clear()
	}

	err := s.f.Close()
	if !s.readOnly {
		if lerr := releaseLock(s.fs, s.path); err == nil {
			err = lerr
		}
	}
	s.log.Debug().Str("path", s.path).Uint64("commits", s.commits).Msg("closed paged store")
	return err
}
