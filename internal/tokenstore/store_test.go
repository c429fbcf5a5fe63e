package tokenstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.arrow")
	flat := [][]int{{0, 36, 100, 2}, {0, 36, 2}, {0, 5, 6, 7, 8, 2}, {}}

	require.NoError(t, Save(path, 2, flat))

	seqs, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, seqs.BeamSize)
	assert.Equal(t, 2, seqs.Examples())
	assert.Equal(t, [][]int{{0, 36, 100, 2}, {0, 36, 2}, {0, 5, 6, 7, 8, 2}, {}}, seqs.Tokens)
}

func TestSaveLoadManyChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.arrow")
	n := 3 * (chunkRows + 5)
	flat := make([][]int, n)
	for i := range flat {
		flat[i] = []int{i, i + 1}
	}
	require.NoError(t, Save(path, 3, flat))

	seqs, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, n/3, seqs.Examples())
	assert.Equal(t, flat, seqs.Tokens)
}

func TestSaveRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, Save(filepath.Join(dir, "a.arrow"), 0, nil))
	assert.Error(t, Save(filepath.Join(dir, "b.arrow"), 2, [][]int{{1}}))
	assert.Error(t, Save(filepath.Join(dir, "c.arrow"), 1, [][]int{{1 << 40}}))
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.arrow")
	require.NoError(t, os.WriteFile(path, []byte("not arrow"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Load(filepath.Join(t.TempDir(), "missing.arrow"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadSequencesOutOfOrder(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	// rows 2..3 first, then rows 0..1
	late, err := BuildRecord(mem, 2, 2, [][]int{{30}, {31}})
	require.NoError(t, err)
	defer late.Release()
	early, err := BuildRecord(mem, 2, 0, [][]int{{10}, {11}})
	require.NoError(t, err)
	defer early.Release()

	out := make([][]int, 4)
	filled := make([]bool, 4)
	require.NoError(t, ReadSequences(late, 2, out, filled))
	require.NoError(t, ReadSequences(early, 2, out, filled))
	assert.Equal(t, [][]int{{10}, {11}, {30}, {31}}, out)

	err = ReadSequences(early, 2, out, filled)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestRows(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewListBuilder(mem, arrow.PrimitiveTypes.Int32)
	defer b.Release()
	require.NoError(t, AppendRows(b, [][]int{{1, 2}, {}, {3}}))
	b.AppendNull()
	arr := b.NewArray()
	defer arr.Release()

	rows, err := Rows(arr)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {}, {3}, nil}, rows)
}
