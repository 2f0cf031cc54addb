package store

import (
	"fmt"
)

// Reattach makes every insert since the previous Reattach durable and
// returns the ID of the new root.
//
// Values longer than the inline limit are written as separate blobs, the
// pending entries go into one segment, and a root node links the segment
// to the previous root. The store commit is the last step, so a failure
// leaves the previous root as the durable state and the pending entries
// still pending.
func (t *Tree) Reattach() (ID, error) {
	if t.dirty.Len() == 0 && t.root != 0 {
		return t.root, nil
	}

	pending := make([]entry, 0, t.dirty.Len())
	var err error
	t.dirty.Scan(func(e entry) bool {
		if e.val.IsInline() && e.val.Len() > t.inlineLimit {
			var ref ID
			ref, err = t.blobs.Append(e.val.inline)
			if err != nil {
				err = fmt.Errorf("write value for key %q: %w", truncateKey(e.key), err)
				return false
			}
			e.val = RefValue(ref, e.val.Len())
		}
		pending = append(pending, e)
		return true
	})
	if err != nil {
		return 0, err
	}

	var segment ID
	if len(pending) > 0 {
		buf, _, err := encodeSegment(pending)
		if err != nil {
			return 0, fmt.Errorf("encode segment: %w", err)
		}
		if segment, err = t.blobs.Append(buf); err != nil {
			return 0, fmt.Errorf("write segment: %w", err)
		}
	}

	node := rootNode{
		Prev:    t.root,
		Segment: segment,
		Count:   uint64(t.items.Len()),
		Seq:     t.seq + 1,
	}
	root, err := t.blobs.Append(encodeRoot(node))
	if err != nil {
		return 0, fmt.Errorf("write root: %w", err)
	}
	if err := t.blobs.Commit(root); err != nil {
		return 0, fmt.Errorf("commit root %s: %w", root, err)
	}

	// swap in the blob references for values now stored out of line
	for _, e := range pending {
		if !e.val.IsInline() {
			t.items.Set(e)
		}
	}
	t.dirty = newEntryTree()
	t.root = root
	t.seq = node.Seq
	return root, nil
}

func truncateKey(key []byte) []byte {
	if len(key) > 32 {
		return key[:32]
	}
	return key
}
