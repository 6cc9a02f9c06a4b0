// Package cursor implements component D: the router-side federation of
// per-shard result streams into a single client-visible cursor, with the
// network batching contract and cursor-id cache (spec §4.D).
package cursor

import "fmt"

// SubCursor is one shard's result stream.
type SubCursor interface {
	// Next returns the next document, or ok=false once exhausted.
	Next() (doc any, ok bool, err error)
	Close() error
}

// ClusteredCursor owns N sub-cursors (one per shard) and merges their
// streams. Sub-cursors are drained in order; this package does not
// implement a sort-merge, since no ordering contract between shards is
// specified — a sorted query's bounds already constrain each shard's
// sub-cursor to return results in order, but stitching N sorted streams
// into one globally sorted stream is left to the caller.
type ClusteredCursor struct {
	subs []SubCursor
	idx  int

	primed bool
	bufDoc any
	bufOK  bool
	bufErr error
}

// NewClusteredCursor wraps the given per-shard sub-cursors.
func NewClusteredCursor(subs []SubCursor) *ClusteredCursor {
	return &ClusteredCursor{subs: subs}
}

func (c *ClusteredCursor) fill() {
	if c.primed {
		return
	}
	for c.idx < len(c.subs) {
		doc, ok, err := c.subs[c.idx].Next()
		if err != nil {
			c.bufErr = err
			c.primed = true
			return
		}
		if ok {
			c.bufDoc = doc
			c.bufOK = true
			c.primed = true
			return
		}
		c.idx++
	}
	c.bufOK = false
	c.primed = true
}

// HasMore reports whether a further call to Next would yield a
// document, without consuming it.
func (c *ClusteredCursor) HasMore() (bool, error) {
	c.fill()
	return c.bufOK, c.bufErr
}

// Next returns the next merged document.
func (c *ClusteredCursor) Next() (any, bool, error) {
	c.fill()
	if c.bufErr != nil {
		err := c.bufErr
		c.bufErr = nil
		c.primed = false
		return nil, false, err
	}
	if !c.bufOK {
		return nil, false, nil
	}
	doc := c.bufDoc
	c.primed = false
	return doc, true, nil
}

// Close closes every sub-cursor, returning the first error encountered.
func (c *ClusteredCursor) Close() error {
	var first error
	for _, s := range c.subs {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

const (
	firstBatchSoftCapBytes = 1 << 20 // 1 MiB
	laterBatchSoftCapBytes = 3 << 20 // 3 MiB
)

// Batch is the reply to one sendNextBatch call.
type Batch struct {
	Docs         []any
	StartingFrom int
	CursorID     int64
}

// ShardedClientCursor wraps a ClusteredCursor and enforces the network
// batching contract (spec §3 Sharded Client Cursor, §4.D).
type ShardedClientCursor struct {
	id         int64
	underlying *ClusteredCursor
	skip       int
	batchSize  int
	totalSent  int
	done       bool
}

// NewShardedClientCursor wraps underlying under id, with the query's
// requested skip/batchSize.
func NewShardedClientCursor(id int64, underlying *ClusteredCursor, skip, batchSize int) *ShardedClientCursor {
	return &ShardedClientCursor{id: id, underlying: underlying, skip: skip, batchSize: batchSize}
}

// ID returns the cursor's process-unique, non-zero id.
func (c *ShardedClientCursor) ID() int64 { return c.id }

// Done reports whether this cursor has yielded all it ever will.
func (c *ShardedClientCursor) Done() bool { return c.done }

// SendNextBatch implements spec §4.D's batching contract.
func (c *ShardedClientCursor) SendNextBatch(ntoreturn int) (Batch, error) {
	if c.done {
		return Batch{StartingFrom: c.totalSent, CursorID: 0}, nil
	}

	softCap := laterBatchSoftCapBytes
	if c.totalSent == 0 {
		softCap = firstBatchSoftCapBytes
	}
	hardLimit := -1
	if ntoreturn < 0 {
		hardLimit = -ntoreturn
	}

	var docs []any
	size := 0
	for {
		if hardLimit >= 0 && c.totalSent+len(docs) >= hardLimit {
			c.done = true
			break
		}
		more, err := c.underlying.HasMore()
		if err != nil {
			return Batch{}, err
		}
		if !more {
			c.done = true
			break
		}

		doc, _, err := c.underlying.Next()
		if err != nil {
			return Batch{}, err
		}
		docs = append(docs, doc)
		size += approxSize(doc)

		if size > softCap {
			break
		}
		if ntoreturn > 0 && len(docs) == ntoreturn {
			break
		}
	}

	startingFrom := c.totalSent
	c.totalSent += len(docs)
	cursorID := c.id
	if c.done {
		cursorID = 0
	}
	return Batch{Docs: docs, StartingFrom: startingFrom, CursorID: cursorID}, nil
}

// approxSize is a crude byte-size estimate for a document. The BSON
// value model is out of scope (spec §1); this stands in for the real
// wire-size accounting that a full implementation would derive from the
// document's serialized form.
func approxSize(doc any) int {
	return len(fmt.Sprintf("%v", doc))
}
