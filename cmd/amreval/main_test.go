package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-amreval/internal/config"
	"github.com/23skdu/longbow-amreval/internal/dataset"
	"github.com/23skdu/longbow-amreval/internal/evaluation"
	"github.com/23skdu/longbow-amreval/internal/genclient"
	"github.com/23skdu/longbow-amreval/internal/tokenstore"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const twoGraphs = `# ::id 1
(w / want-01
   :ARG0 (b / boy))

# ::id 2
(c / cat)
`

func TestSmatchCommand(t *testing.T) {
	dir := t.TempDir()
	gold := write(t, dir, "gold.txt", twoGraphs)
	pred := write(t, dir, "pred.txt", twoGraphs)

	out, err := execute(t, "smatch", "-p", pred, "-g", gold, "--f_only=false", "--verbose=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Smatch with longbow-amreval")
	assert.Contains(t, out, "Gold File: "+gold)
	assert.Contains(t, out, "Pred File: "+pred)
	assert.Contains(t, out, " Precision: 1.00000\n")
	assert.Contains(t, out, " Recall: 1.00000\n")
	assert.Contains(t, out, " F-Score: 1.00000\n")

	out, err = execute(t, "smatch", "-p", pred, "-g", gold, "--f_only")
	require.NoError(t, err)
	assert.NotContains(t, out, "Precision")
	assert.Contains(t, out, " F-Score: 1.00000\n")
}

func TestSmatchCommandMissingFile(t *testing.T) {
	dir := t.TempDir()
	gold := write(t, dir, "gold.txt", twoGraphs)

	_, err := execute(t, "smatch", "-p", filepath.Join(dir, "nope.txt"), "-g", gold)
	assert.Error(t, err)
}

func TestBLEUCommand(t *testing.T) {
	dir := t.TempDir()
	gold := write(t, dir, "gold.txt", "The cat sat on the mat.\nA dog barks.\n")
	pred := write(t, dir, "pred.txt", "The cat sat on the mat.\nA dog barks.\n")

	out, err := execute(t, "bleu", "--pred", pred, "--gold", gold)
	require.NoError(t, err)
	assert.Contains(t, out, "BLEU = 100.00")
}

type echoModel struct{}

func (echoModel) Generate(ctx context.Context, in evaluation.Encoding, params config.GenerationParams) ([][]int, error) {
	var out [][]int
	for _, row := range in.InputIDs {
		for b := 0; b < params.NumReturnSequences; b++ {
			out = append(out, []int{row[0], 3 + b})
		}
	}
	return out, nil
}

func TestGenerateAndTokensCommands(t *testing.T) {
	srv := genclient.NewServer(echoModel{})
	require.NoError(t, srv.Start("localhost:0"))
	defer srv.Stop()

	dir := t.TempDir()
	input := filepath.Join(dir, "data.arrow")
	require.NoError(t, dataset.WriteFile(input, []dataset.Example{
		{Source: []int{100}},
		{Source: []int{101, 9, 9}},
		{Source: []int{102, 9}},
	}))
	output := filepath.Join(dir, "beams.arrow")

	_, err := execute(t, "generate", "--server", srv.Addr(), "--input", input, "--output", output,
		"--mode", "amr", "--beam-size", "2", "--batch-size", "2")
	require.NoError(t, err)

	seqs, err := tokenstore.Load(output)
	require.NoError(t, err)
	assert.Equal(t, 2, seqs.BeamSize)
	assert.Equal(t, [][]int{{100, 3}, {100, 4}, {101, 3}, {101, 4}, {102, 3}, {102, 4}}, seqs.Tokens)

	out, err := execute(t, "tokens", output)
	require.NoError(t, err)
	assert.Contains(t, out, " Examples: 3\n")
	assert.Contains(t, out, " Beam size: 2\n")
}

const testVocab = `{"<s>":0,"<pad>":1,"</s>":2,"(":3,"Ġ<pointer:0>":4,"Ġdog":5,"Ġ)":6,"Ġcat":7,
"Hello":8,"Ġworld":9,"Ġthe":10,"Ġsat":11,"Ġon":12,"Ġmat":13,".":14}`

func TestDecodeCommandAMR(t *testing.T) {
	dir := t.TempDir()
	vocab := write(t, dir, "vocab.json", testVocab)
	refs := write(t, dir, "refs.txt", `# ::id t.1
# ::snt_org The dog.
(d / dog)

# ::id t.2
# ::snt_org A cat.
(c / cat)
`)
	seqs := filepath.Join(dir, "beams.arrow")
	require.NoError(t, tokenstore.Save(seqs, 2, [][]int{
		{0, 8, 2}, {0, 3, 4, 5, 6, 2},
		{3, 4, 7, 6}, {8},
	}))
	output := filepath.Join(dir, "pred.txt")

	out, err := execute(t, "decode", "--tokens", seqs, "--vocab", vocab, "--refs", refs,
		"--output", output, "--mode", "amr", "--score")
	require.NoError(t, err)
	assert.Contains(t, out, " F-Score: 1.00000\n")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "# ::id t.1\n")
	assert.Contains(t, text, "# ::snt The dog.\n")
	assert.Contains(t, text, "(p0 / dog)\n\n")
	assert.Contains(t, text, "# ::id t.2\n")
	assert.Contains(t, text, "(p0 / cat)\n")
	assert.NotContains(t, text, "snt_org")
}

func TestDecodeCommandAMRNeedsRefs(t *testing.T) {
	dir := t.TempDir()
	vocab := write(t, dir, "vocab.json", testVocab)
	seqs := filepath.Join(dir, "beams.arrow")
	require.NoError(t, tokenstore.Save(seqs, 1, [][]int{{3, 4, 5, 6}}))

	_, err := execute(t, "decode", "--tokens", seqs, "--vocab", vocab, "--refs", "",
		"--output", filepath.Join(dir, "pred.txt"), "--mode", "amr", "--score=false")
	assert.Error(t, err)
}

func TestDecodeCommandSentence(t *testing.T) {
	dir := t.TempDir()
	vocab := write(t, dir, "vocab.json", testVocab)
	refs := write(t, dir, "refs.txt", "Hello world the cat sat on the mat.\n")
	seqs := filepath.Join(dir, "beams.arrow")
	require.NoError(t, tokenstore.Save(seqs, 1, [][]int{{0, 8, 9, 10, 7, 11, 12, 10, 13, 14, 2}}))
	output := filepath.Join(dir, "pred.txt")

	out, err := execute(t, "decode", "--tokens", seqs, "--vocab", vocab, "--refs", refs,
		"--output", output, "--mode", "sentence", "--score")
	require.NoError(t, err)
	assert.Contains(t, out, "BLEU = 100.00")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "Hello world the cat sat on the mat.\n", string(data))
}

func TestDecodeCommandRejectsScoreWithReturnAll(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, decodeCmd.Flags().Set("return-all", "false")) })

	dir := t.TempDir()
	vocab := write(t, dir, "vocab.json", testVocab)
	refs := write(t, dir, "refs.txt", "# ::snt_org The dog.\n(d / dog)\n")
	seqs := filepath.Join(dir, "beams.arrow")
	require.NoError(t, tokenstore.Save(seqs, 2, [][]int{{3, 4, 5, 6}, {8}}))
	output := filepath.Join(dir, "pred.txt")

	_, err := execute(t, "decode", "--tokens", seqs, "--vocab", vocab, "--refs", refs,
		"--output", output, "--mode", "amr", "--return-all", "--score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--return-all")
	assert.NoFileExists(t, output)
}

func TestGenerateCommandSentenceNeedsTargets(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, generateCmd.Flags().Set("mode", "amr")) })

	dir := t.TempDir()
	input := filepath.Join(dir, "data.arrow")
	require.NoError(t, dataset.WriteFile(input, []dataset.Example{
		{Source: []int{100}, Target: []int{200}},
		{Source: []int{101}},
	}))
	output := filepath.Join(dir, "beams.arrow")

	_, err := execute(t, "generate", "--server", "localhost:1", "--input", input, "--output", output,
		"--mode", "sentence", "--beam-size", "1", "--batch-size", "2")
	require.Error(t, err)
	assert.ErrorIs(t, err, dataset.ErrMissingTarget)
	assert.NoFileExists(t, output)
}
