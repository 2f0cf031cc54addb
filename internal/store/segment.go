package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Segment format: the entries added between two checkpoints, sorted by key
//
//   Header (32 bytes):
//     - Magic (4): "KVSG"
//     - Version (2): 1
//     - Flags (2): bit 0 set when the body is zstd compressed
//     - Count (4): number of entries
//     - RawSize (4): uncompressed body size
//     - Checksum (4): CRC32 of the uncompressed body
//     - Reserved (12)
//   Body, per entry:
//     - Shared (uvarint): bytes shared with the previous key
//     - SuffixLen (uvarint), Suffix
//     - Kind (1): 0 inline, 1 blob reference
//     - inline: Len (uvarint), bytes
//     - reference: Ref (uvarint), Size (uvarint)

const (
	SegmentMagic      = "KVSG"
	SegmentVersion    = 1
	SegmentHeaderSize = 32

	segmentFlagZstd = 1 << 0

	// bodies smaller than this are stored uncompressed
	minCompressSize = 256

	kindInline = 0
	kindRef    = 1
)

type segmentCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// EncodeAll/DecodeAll are safe for concurrent use, so one codec is shared.
var sharedCodec = sync.OnceValues(func() (*segmentCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &segmentCodec{encoder: enc, decoder: dec}, nil
})

// SegmentWriteStats describes one encoded segment.
type SegmentWriteStats struct {
	Entries        int
	KeyPrefixBytes int // key bytes elided by prefix sharing
	RawSize        int
	EncodedSize    int
	Compressed     bool
}

// encodeSegment encodes entries, which must be sorted by key with no duplicates.
func encodeSegment(entries []entry) ([]byte, SegmentWriteStats, error) {
	var stats SegmentWriteStats
	stats.Entries = len(entries)

	var body []byte
	var prev []byte
	for i, e := range entries {
		if i > 0 && bytes.Compare(prev, e.key) >= 0 {
			return nil, stats, fmt.Errorf("segment entry %d out of order", i)
		}
		shared := commonPrefix(prev, e.key)
		stats.KeyPrefixBytes += shared

		body = binary.AppendUvarint(body, uint64(shared))
		body = binary.AppendUvarint(body, uint64(len(e.key)-shared))
		body = append(body, e.key[shared:]...)
		if e.val.IsInline() {
			body = append(body, kindInline)
			body = binary.AppendUvarint(body, uint64(len(e.val.inline)))
			body = append(body, e.val.inline...)
		} else {
			body = append(body, kindRef)
			body = binary.AppendUvarint(body, uint64(e.val.ref))
			body = binary.AppendUvarint(body, uint64(e.val.size))
		}
		prev = e.key
	}
	stats.RawSize = len(body)
	if len(body) > MaxBlobSize-SegmentHeaderSize {
		return nil, stats, fmt.Errorf("segment body %d bytes exceeds blob limit", len(body))
	}

	var flags uint16
	payload := body
	if len(body) >= minCompressSize {
		codec, err := sharedCodec()
		if err != nil {
			return nil, stats, fmt.Errorf("create zstd codec: %w", err)
		}
		compressed := codec.encoder.EncodeAll(body, make([]byte, 0, len(body)/2))
		if len(compressed) < len(body) {
			payload = compressed
			flags |= segmentFlagZstd
			stats.Compressed = true
		}
	}

	buf := make([]byte, SegmentHeaderSize, SegmentHeaderSize+len(payload))
	copy(buf[0:4], SegmentMagic)
	binary.LittleEndian.PutUint16(buf[4:6], SegmentVersion)
	binary.LittleEndian.PutUint16(buf[6:8], flags)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(body)))
	binary.LittleEndian.PutUint32(buf[16:20], crc32.ChecksumIEEE(body))
	buf = append(buf, payload...)
	stats.EncodedSize = len(buf)
	return buf, stats, nil
}

// decodeSegment is the inverse of encodeSegment.
func decodeSegment(buf []byte) ([]entry, error) {
	if len(buf) < SegmentHeaderSize {
		return nil, fmt.Errorf("segment too short (%d bytes): %w", len(buf), ErrCorrupt)
	}
	if string(buf[0:4]) != SegmentMagic {
		return nil, fmt.Errorf("invalid segment magic %q: %w", buf[0:4], ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != SegmentVersion {
		return nil, fmt.Errorf("unsupported segment version %d: %w", v, ErrCorrupt)
	}
	flags := binary.LittleEndian.Uint16(buf[6:8])
	count := binary.LittleEndian.Uint32(buf[8:12])
	rawSize := binary.LittleEndian.Uint32(buf[12:16])
	checksum := binary.LittleEndian.Uint32(buf[16:20])

	body := buf[SegmentHeaderSize:]
	if flags&segmentFlagZstd != 0 {
		codec, err := sharedCodec()
		if err != nil {
			return nil, fmt.Errorf("create zstd codec: %w", err)
		}
		body, err = codec.decoder.DecodeAll(body, make([]byte, 0, min(int(rawSize), 64*len(body))))
		if err != nil {
			return nil, fmt.Errorf("decompress segment: %v: %w", err, ErrCorrupt)
		}
	}
	if uint32(len(body)) != rawSize {
		return nil, fmt.Errorf("segment body %d bytes, want %d: %w", len(body), rawSize, ErrCorrupt)
	}
	if got := crc32.ChecksumIEEE(body); got != checksum {
		return nil, fmt.Errorf("segment checksum %08x, want %08x: %w", got, checksum, ErrCorrupt)
	}

	// every entry takes at least 3 body bytes
	entries := make([]entry, 0, min(count, uint32(len(body)/3)))
	r := segmentReader{buf: body}
	var prev []byte
	for i := uint32(0); i < count; i++ {
		shared := r.readUvarint()
		suffixLen := r.readUvarint()
		suffix := r.readBytes(suffixLen)
		if r.err != nil {
			break
		}
		if shared > uint64(len(prev)) {
			return nil, fmt.Errorf("segment entry %d shares %d bytes of a %d byte key: %w", i, shared, len(prev), ErrCorrupt)
		}
		key := make([]byte, int(shared)+len(suffix))
		copy(key, prev[:shared])
		copy(key[shared:], suffix)
		if i > 0 && bytes.Compare(prev, key) >= 0 {
			return nil, fmt.Errorf("segment entry %d out of order: %w", i, ErrCorrupt)
		}

		var val Value
		switch r.readByte() {
		case kindInline:
			val = InlineValue(r.readBytes(r.readUvarint()))
		case kindRef:
			ref := ID(r.readUvarint())
			val = RefValue(ref, int(r.readUvarint()))
			if ref == 0 {
				r.fail()
			}
		default:
			r.fail()
		}
		if r.err != nil {
			break
		}
		entries = append(entries, entry{key: key, val: val})
		prev = key
	}
	if r.err != nil {
		return nil, fmt.Errorf("segment entry %d: %w", len(entries), r.err)
	}
	if r.off != len(body) {
		return nil, fmt.Errorf("segment has %d trailing bytes: %w", len(body)-r.off, ErrCorrupt)
	}
	return entries, nil
}

var errSegmentTruncated = fmt.Errorf("truncated segment entry: %w", ErrCorrupt)

// segmentReader decodes a body, latching the first error.
type segmentReader struct {
	buf []byte
	off int
	err error
}

func (r *segmentReader) fail() {
	if r.err == nil {
		r.err = errSegmentTruncated
	}
}

func (r *segmentReader) readUvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.fail()
		return 0
	}
	r.off += n
	return v
}

func (r *segmentReader) readByte() byte {
	if r.err != nil || r.off >= len(r.buf) {
		r.fail()
		return 0
	}
	b := r.buf[r.off]
	r.off++
	return b
}

func (r *segmentReader) readBytes(n uint64) []byte {
	if r.err != nil || n > uint64(len(r.buf)-r.off) {
		r.fail()
		return nil
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b
}

func commonPrefix(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// IsCorrupt reports whether err stems from failed validation of stored data.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
