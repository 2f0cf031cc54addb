package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Blob frame: 8 + len(payload) bytes
// - Length (uint32): payload length
// - Checksum (uint32): CRC32 (IEEE) of payload
// - Payload

const frameHeaderSize = 4 + 4

// MaxBlobSize bounds a single blob payload.
const MaxBlobSize = 1<<31 - 1

func encodeFrame(payload []byte) []byte {
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[4:8], crc32.ChecksumIEEE(payload))
	copy(buf[frameHeaderSize:], payload)
	return buf
}

func decodeFrameHeader(buf []byte) (length uint32, checksum uint32) {
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8])
}

func checkFrame(id ID, payload []byte, checksum uint32) error {
	if got := crc32.ChecksumIEEE(payload); got != checksum {
		return fmt.Errorf("blob %s: checksum %08x, want %08x: %w", id, got, checksum, ErrCorrupt)
	}
	return nil
}

// Root node: 40 bytes
// - Magic (4): "KVRT"
// - Version (2): 1
// - Flags (2): reserved
// - Prev (uint64): previous root, 0 for the first checkpoint
// - Segment (uint64): segment blob with the entries added since Prev, 0 if none
// - Count (uint64): entries reachable from this root
// - Seq (uint64): 1-based checkpoint sequence number

const (
	rootMagic   = "KVRT"
	rootVersion = 1
	rootSize    = 40
)

type rootNode struct {
	Prev    ID
	Segment ID
	Count   uint64
	Seq     uint64
}

func encodeRoot(r rootNode) []byte {
	buf := make([]byte, rootSize)
	copy(buf[0:4], rootMagic)
	binary.LittleEndian.PutUint16(buf[4:6], rootVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.Prev))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(r.Segment))
	binary.LittleEndian.PutUint64(buf[24:32], r.Count)
	binary.LittleEndian.PutUint64(buf[32:40], r.Seq)
	return buf
}

func decodeRoot(buf []byte) (rootNode, error) {
	if len(buf) != rootSize {
		return rootNode{}, fmt.Errorf("root node is %d bytes, want %d: %w", len(buf), rootSize, ErrTreeNotFound)
	}
	if string(buf[0:4]) != rootMagic {
		return rootNode{}, fmt.Errorf("invalid root magic %q: %w", buf[0:4], ErrTreeNotFound)
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != rootVersion {
		return rootNode{}, fmt.Errorf("unsupported root version %d: %w", v, ErrCorrupt)
	}
	return rootNode{
		Prev:    ID(binary.LittleEndian.Uint64(buf[8:16])),
		Segment: ID(binary.LittleEndian.Uint64(buf[16:24])),
		Count:   binary.LittleEndian.Uint64(buf[24:32]),
		Seq:     binary.LittleEndian.Uint64(buf[32:40]),
	}, nil
}
