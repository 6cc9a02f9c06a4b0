package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSubCursor struct {
	docs []any
	idx  int
}

func newSliceSubCursor(n int) *sliceSubCursor {
	docs := make([]any, n)
	for i := range docs {
		docs[i] = i
	}
	return &sliceSubCursor{docs: docs}
}

func (s *sliceSubCursor) Next() (any, bool, error) {
	if s.idx >= len(s.docs) {
		return nil, false, nil
	}
	d := s.docs[s.idx]
	s.idx++
	return d, true, nil
}

func (s *sliceSubCursor) Close() error { return nil }

// TestSendNextBatchScenario3 exercises spec §8 scenario 3: two shards
// returning 150 and 70 documents (220 total), client batchSize=100.
func TestSendNextBatchScenario3(t *testing.T) {
	merged := NewClusteredCursor([]SubCursor{newSliceSubCursor(150), newSliceSubCursor(70)})
	sc := NewShardedClientCursor(42, merged, 0, 100)

	b1, err := sc.SendNextBatch(100)
	require.NoError(t, err)
	assert.Len(t, b1.Docs, 100)
	assert.Equal(t, 0, b1.StartingFrom)
	assert.NotZero(t, b1.CursorID)

	b2, err := sc.SendNextBatch(100)
	require.NoError(t, err)
	assert.Len(t, b2.Docs, 100)
	assert.Equal(t, 100, b2.StartingFrom)
	assert.NotZero(t, b2.CursorID)

	b3, err := sc.SendNextBatch(100)
	require.NoError(t, err)
	assert.Len(t, b3.Docs, 20)
	assert.Equal(t, 200, b3.StartingFrom)
	assert.Equal(t, int64(0), b3.CursorID)
	assert.True(t, sc.Done())
}

func TestSendNextBatchHardTotalLimit(t *testing.T) {
	merged := NewClusteredCursor([]SubCursor{newSliceSubCursor(50)})
	sc := NewShardedClientCursor(1, merged, 0, 100)

	// ntoreturn=-10: hard limit of 10 total documents, ever.
	b, err := sc.SendNextBatch(-10)
	require.NoError(t, err)
	assert.Len(t, b.Docs, 10)
	assert.Equal(t, int64(0), b.CursorID)
	assert.True(t, sc.Done())
}

func TestSendNextBatchOnDoneCursorReturnsEmpty(t *testing.T) {
	merged := NewClusteredCursor([]SubCursor{newSliceSubCursor(1)})
	sc := NewShardedClientCursor(1, merged, 0, 10)

	_, err := sc.SendNextBatch(10)
	require.NoError(t, err)
	require.True(t, sc.Done())

	b, err := sc.SendNextBatch(10)
	require.NoError(t, err)
	assert.Empty(t, b.Docs)
	assert.Equal(t, int64(0), b.CursorID)
}

func TestClusteredCursorDrainsSubCursorsInOrder(t *testing.T) {
	merged := NewClusteredCursor([]SubCursor{newSliceSubCursor(2), newSliceSubCursor(2)})
	var got []any
	for {
		doc, ok, err := merged.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, doc)
	}
	assert.Equal(t, []any{0, 1, 0, 1}, got)
}
