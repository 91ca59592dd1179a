package minorheap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveSlicesPartitionTheRegion(t *testing.T) {
	r, err := Reserve(4, 1024)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 1024, r.MaxWords())
	for i := 0; i < 4; i++ {
		s := r.Slice(i)
		assert.Equal(t, uintptr(1024*wordSize), s.AreaEnd-s.AreaStart)
		if i > 0 {
			prev := r.Slice(i - 1)
			assert.Equal(t, prev.AreaEnd, s.AreaStart, "slices must be contiguous and non-overlapping")
		}
	}
}

func TestReserveRejectsInvalidDimensions(t *testing.T) {
	_, err := Reserve(0, 1024)
	assert.Error(t, err)

	_, err = Reserve(4, 0)
	assert.Error(t, err)
}

func TestCommitAndDecommitSliceRoundTrip(t *testing.T) {
	r, err := Reserve(2, 64)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.CommitSlice(0))
	require.NoError(t, r.DecommitSlice(0))

	assert.Error(t, r.CommitSlice(-1))
	assert.Error(t, r.DecommitSlice(2))
}

func TestResizeGrowsMaxWordsAndRewritesSlices(t *testing.T) {
	r, err := Reserve(3, 128)
	require.NoError(t, err)
	defer r.Close()

	oldBase := r.Slice(0).AreaStart
	require.NoError(t, r.Resize(256))

	assert.Equal(t, 256, r.MaxWords())
	assert.Equal(t, uintptr(256*wordSize), r.Slice(0).AreaEnd-r.Slice(0).AreaStart)
	_ = oldBase // the remapped region may or may not land at the same address; only sizing is guaranteed
}

func TestResizeRejectsNonPositiveWords(t *testing.T) {
	r, err := Reserve(1, 64)
	require.NoError(t, err)
	defer r.Close()

	assert.Error(t, r.Resize(0))
}
