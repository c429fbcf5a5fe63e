package genclient

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-amreval/internal/config"
	"github.com/23skdu/longbow-amreval/internal/evaluation"
)

// echoModel returns [row[0], beam] for every requested beam.
type echoModel struct {
	mu     sync.Mutex
	params []config.GenerationParams
	masks  [][][]int
	err    error
}

func (m *echoModel) Generate(ctx context.Context, in evaluation.Encoding, params config.GenerationParams) ([][]int, error) {
	m.mu.Lock()
	m.params = append(m.params, params)
	m.masks = append(m.masks, in.AttentionMask)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out [][]int
	for _, row := range in.InputIDs {
		for b := 0; b < params.NumReturnSequences; b++ {
			out = append(out, []int{row[0], b})
		}
	}
	return out, nil
}

func (m *echoModel) calls() ([]config.GenerationParams, [][][]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]config.GenerationParams(nil), m.params...), append([][][]int(nil), m.masks...)
}

func startServer(t *testing.T, m evaluation.Model) *Client {
	t.Helper()
	srv := NewServer(m)
	require.NoError(t, srv.Start("localhost:0"))
	t.Cleanup(srv.Stop)
	require.NotEmpty(t, srv.Addr())

	c, err := Dial(srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestGenerateRoundTrip(t *testing.T) {
	model := &echoModel{}
	c := startServer(t, model)

	params := config.ForMode(config.ModeAMR, 2, 0).Generation
	in := evaluation.Encoding{
		InputIDs:      [][]int{{100, 5, 6}, {101, 7, 1}},
		AttentionMask: [][]int{{1, 1, 1}, {1, 1, 0}},
	}
	out, err := c.Generate(context.Background(), in, params)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{100, 0}, {100, 1}, {101, 0}, {101, 1}}, out)

	seen, masks := model.calls()
	require.Len(t, seen, 1)
	assert.Equal(t, params, seen[0])
	require.NotNil(t, seen[0].ForcedBOSTokenID)
	assert.Equal(t, config.DefaultForcedBOS, *seen[0].ForcedBOSTokenID)
	assert.Equal(t, in.AttentionMask, masks[0])
}

func TestGenerateWithoutMask(t *testing.T) {
	model := &echoModel{}
	c := startServer(t, model)

	params := config.ForMode(config.ModeSentence, 1, 0).Generation
	out, err := c.Generate(context.Background(), evaluation.Encoding{InputIDs: [][]int{{7}}}, params)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{7, 0}}, out)
	seen, masks := model.calls()
	require.Len(t, seen, 1)
	assert.Nil(t, masks[0])
	assert.Nil(t, seen[0].ForcedBOSTokenID)
}

func TestGenerateModelError(t *testing.T) {
	c := startServer(t, &echoModel{err: errors.New("out of memory")})

	_, err := c.Generate(context.Background(), evaluation.Encoding{InputIDs: [][]int{{1}}}, config.Default().Generation)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestClientDrivesPipeline(t *testing.T) {
	c := startServer(t, &echoModel{})

	cfg := config.ForMode(config.ModeAMR, 3, 0)
	p, err := evaluation.NewAMRPipeline(c, nil, nil, cfg)
	require.NoError(t, err)

	loader := &sliceLoader{rows: [][]int{{10}, {11, 0}, {12, 0, 0}}}
	flat, err := p.Generate(context.Background(), loader)
	require.NoError(t, err)
	require.Len(t, flat, 9)
	for i, seq := range flat {
		assert.Equal(t, []int{10 + i/3, i % 3}, seq)
	}
}

func TestCommandRejectsUnknownAction(t *testing.T) {
	_, err := decodeCommand([]byte(`{"action":"train"}`))
	assert.Error(t, err)
	_, err = decodeCommand([]byte(`{`))
	assert.Error(t, err)

	b, err := encodeCommand(config.Default().Generation)
	require.NoError(t, err)
	got, err := decodeCommand(b)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Generation, got)
}

func TestDialEmptyAddress(t *testing.T) {
	_, err := Dial("")
	assert.Error(t, err)
}

// sliceLoader yields rows longest first, one per batch.
type sliceLoader struct {
	rows     [][]int
	ordering evaluation.Ordering
}

func (l *sliceLoader) Ordering() evaluation.Ordering      { return l.ordering }
func (l *sliceLoader) SetOrdering(o evaluation.Ordering) { l.ordering = o }
func (l *sliceLoader) Len() int                          { return len(l.rows) }

func (l *sliceLoader) Iterate(ctx context.Context, fn func(evaluation.Batch) error) error {
	for i := len(l.rows) - 1; i >= 0; i-- {
		b := evaluation.Batch{IDs: []int{i}, Source: evaluation.Encoding{InputIDs: [][]int{l.rows[i]}}}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}
