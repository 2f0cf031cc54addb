package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// Paged file layout
//
// The file is a whole number of pages. Page 0 holds the header; blobs are
// appended from the start of page 1 onward and may span page boundaries.
// The file grows a page at a time, so PageSize sets the growth granularity.
//
//   Header (64 bytes at offset 0, rest of page 0 is zero):
//     - Magic (4): "KVPF"
//     - Version (2): 1
//     - Flags (2): reserved
//     - PageSize (4): bytes per page
//     - Reserved (4)
//     - End (8): offset one past the last committed blob
//     - LastID (8): most recently committed root, 0 if none
//     - Commits (8): number of commits since creation
//     - Checksum (4): CRC32 of bytes [0, 40)
//     - Reserved (20): padding to 64 bytes
//
// Commit writes and syncs blob data before rewriting the header, so a
// crash leaves either the old or the new header pointing at complete data.

const (
	FileMagic      = "KVPF"
	FileVersion    = 1
	FileHeaderSize = 64

	DefaultPageSize = 1024 * 1024
	MinPageSize     = 4096
)

// FileHeader is the decoded header page.
type FileHeader struct {
	Magic    [4]byte
	Version  uint16
	Flags    uint16
	PageSize uint32
	End      uint64
	LastID   ID
	Commits  uint64
	Checksum uint32
}

func encodeFileHeader(h *FileHeader) []byte {
	buf := make([]byte, FileHeaderSize)
	copy(buf[0:4], FileMagic)
	binary.LittleEndian.PutUint16(buf[4:6], FileVersion)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.PageSize)
	binary.LittleEndian.PutUint64(buf[16:24], h.End)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.LastID))
	binary.LittleEndian.PutUint64(buf[32:40], h.Commits)
	h.Checksum = crc32.ChecksumIEEE(buf[0:40])
	binary.LittleEndian.PutUint32(buf[40:44], h.Checksum)
	return buf
}

func decodeFileHeader(buf []byte) (*FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return nil, errors.New("header too short")
	}
	h := &FileHeader{}
	copy(h.Magic[:], buf[0:4])
	if string(h.Magic[:]) != FileMagic {
		return nil, fmt.Errorf("invalid magic %q: %w", h.Magic, ErrCorrupt)
	}
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	if h.Version != FileVersion {
		return nil, fmt.Errorf("unsupported version %d: %w", h.Version, ErrCorrupt)
	}
	h.Flags = binary.LittleEndian.Uint16(buf[6:8])
	h.PageSize = binary.LittleEndian.Uint32(buf[8:12])
	h.End = binary.LittleEndian.Uint64(buf[16:24])
	h.LastID = ID(binary.LittleEndian.Uint64(buf[24:32]))
	h.Commits = binary.LittleEndian.Uint64(buf[32:40])
	h.Checksum = binary.LittleEndian.Uint32(buf[40:44])

	if got := crc32.ChecksumIEEE(buf[0:40]); got != h.Checksum {
		return nil, fmt.Errorf("header checksum %08x, want %08x: %w", got, h.Checksum, ErrCorrupt)
	}
	if h.PageSize < MinPageSize {
		return nil, fmt.Errorf("header page size %d: %w", h.PageSize, ErrCorrupt)
	}
	if h.End < uint64(h.PageSize) {
		return nil, fmt.Errorf("header end %d inside header page: %w", h.End, ErrCorrupt)
	}
	return h, nil
}

// pagesFor rounds n up to a whole number of pages.
func pagesFor(n int64, pageSize int) int64 {
	ps := int64(pageSize)
	return (n + ps - 1) / ps * ps
}
