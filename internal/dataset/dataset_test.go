package dataset

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-amreval/internal/evaluation"
)

func sample() []Example {
	return []Example{
		{Source: []int{10}, Target: []int{20, 21}},
		{Source: []int{11, 11, 11}, Target: []int{22}},
		{Source: []int{12, 12}, Target: nil},
		{Source: []int{13, 13, 13, 13}, Target: []int{23}},
		{Source: []int{14}, Target: []int{24}},
	}
}

func collect(t *testing.T, l *Loader) []evaluation.Batch {
	t.Helper()
	var batches []evaluation.Batch
	require.NoError(t, l.Iterate(context.Background(), func(b evaluation.Batch) error {
		batches = append(batches, b)
		return nil
	}))
	return batches
}

func TestLoaderCoversDatasetOnce(t *testing.T) {
	for _, o := range []evaluation.Ordering{{}, {Shuffle: true}, {Sort: true}, {Shuffle: true, Sort: true}} {
		l, err := NewLoader(sample(), 2)
		require.NoError(t, err)
		l.SetOrdering(o)

		var ids []int
		for _, b := range collect(t, l) {
			assert.Len(t, b.Source.InputIDs, len(b.IDs))
			ids = append(ids, b.IDs...)
		}
		sort.Ints(ids)
		assert.Equal(t, []int{0, 1, 2, 3, 4}, ids, "ordering %+v", o)
	}
}

func TestLoaderSortedBatchesArePadded(t *testing.T) {
	l, err := NewLoader(sample(), 2)
	require.NoError(t, err)
	l.SetOrdering(evaluation.Ordering{Sort: true})

	batches := collect(t, l)
	require.Len(t, batches, 3)
	assert.Equal(t, []int{3, 1}, batches[0].IDs)
	assert.Equal(t, [][]int{{13, 13, 13, 13}, {11, 11, 11, PadID}}, batches[0].Source.InputIDs)
	assert.Equal(t, [][]int{{1, 1, 1, 1}, {1, 1, 1, 0}}, batches[0].Source.AttentionMask)
	assert.Equal(t, []int{4}, batches[2].IDs)
}

func TestLoaderStopsOnError(t *testing.T) {
	l, err := NewLoader(sample(), 1)
	require.NoError(t, err)
	stop := errors.New("stop")
	calls := 0
	err = l.Iterate(context.Background(), func(evaluation.Batch) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Iterate(ctx, func(evaluation.Batch) error { return nil }), context.Canceled)

	_, err = NewLoader(nil, 0)
	assert.Error(t, err)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.arrow")
	require.NoError(t, WriteFile(path, sample()))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, []int{11, 11, 11}, got[1].Source)
	assert.Equal(t, []int{20, 21}, got[0].Target)
	assert.Empty(t, got[2].Target)

	_, err = ReadFile(filepath.Join(t.TempDir(), "none.arrow"))
	assert.Error(t, err)
}

func TestRequireTargets(t *testing.T) {
	err := RequireTargets(sample())
	assert.ErrorIs(t, err, ErrMissingTarget)
	assert.Contains(t, err.Error(), "example 2")

	withTargets := sample()
	withTargets[2].Target = []int{25}
	assert.NoError(t, RequireTargets(withTargets))
	assert.NoError(t, RequireTargets(nil))
}

func TestRequireTargetsAfterReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.arrow")
	require.NoError(t, WriteFile(path, []Example{{Source: []int{1}}, {Source: []int{2, 3}}}))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.ErrorIs(t, RequireTargets(got), ErrMissingTarget)
}
