package tokenstore

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-amreval/internal/logger"
)

const (
	metaBeamSize = "beam_size"
	// rows per record batch in a written file
	chunkRows = 4096
)

var ErrCorrupt = errors.New("tokenstore: corrupt sequence file")

// Sequences are generated candidates, flat in dataset order with the beam
// group of every example contiguous.
type Sequences struct {
	BeamSize int
	Tokens   [][]int
}

// Examples is the number of dataset examples covered.
func (s Sequences) Examples() int {
	if s.BeamSize == 0 {
		return 0
	}
	return len(s.Tokens) / s.BeamSize
}

// Schema is the layout of a sequence file: one row per candidate.
func Schema(beamSize int) *arrow.Schema {
	md := arrow.NewMetadata([]string{metaBeamSize}, []string{strconv.Itoa(beamSize)})
	return arrow.NewSchema([]arrow.Field{
		{Name: "example", Type: arrow.PrimitiveTypes.Int32},
		{Name: "beam", Type: arrow.PrimitiveTypes.Int32},
		{Name: "tokens", Type: ListType},
	}, &md)
}

// BuildRecord encodes flat[offset:offset+n] as one record batch.
func BuildRecord(mem memory.Allocator, beamSize, offset int, flat [][]int) (arrow.Record, error) {
	b := array.NewRecordBuilder(mem, Schema(beamSize))
	defer b.Release()

	ex := b.Field(0).(*array.Int32Builder)
	beam := b.Field(1).(*array.Int32Builder)
	for i := range flat {
		k := offset + i
		ex.Append(int32(k / beamSize))
		beam.Append(int32(k % beamSize))
	}
	if err := AppendRows(b.Field(2).(*array.ListBuilder), flat); err != nil {
		return nil, err
	}
	return b.NewRecord(), nil
}

// ReadSequences places the rows of rec into out by (example, beam).
func ReadSequences(rec arrow.Record, beamSize int, out [][]int, filled []bool) error {
	exCol, err := Column(rec, "example")
	if err != nil {
		return err
	}
	beamCol, err := Column(rec, "beam")
	if err != nil {
		return err
	}
	tokCol, err := Column(rec, "tokens")
	if err != nil {
		return err
	}
	examples, ok1 := exCol.(*array.Int32)
	beams, ok2 := beamCol.(*array.Int32)
	if !ok1 || !ok2 {
		return fmt.Errorf("%w: example and beam must be int32", ErrCorrupt)
	}
	rows, err := Rows(tokCol)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	for i, row := range rows {
		e, b := int(examples.Value(i)), int(beams.Value(i))
		if b < 0 || b >= beamSize {
			return fmt.Errorf("%w: beam %d outside [0, %d)", ErrCorrupt, b, beamSize)
		}
		k := e*beamSize + b
		if e < 0 || k >= len(out) {
			return fmt.Errorf("%w: example %d out of range", ErrCorrupt, e)
		}
		if filled[k] {
			return fmt.Errorf("%w: example %d beam %d stored twice", ErrCorrupt, e, b)
		}
		out[k] = row
		filled[k] = true
	}
	return nil
}

// Save writes flat, grouped by beamSize, to path.
func Save(path string, beamSize int, flat [][]int) error {
	if beamSize < 1 {
		return fmt.Errorf("invalid beam_size: %d (must be positive)", beamSize)
	}
	if len(flat)%beamSize != 0 {
		return fmt.Errorf("%d sequences not divisible by beam size %d", len(flat), beamSize)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sequence file: %w", err)
	}
	defer f.Close()

	mem := memory.NewGoAllocator()
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(Schema(beamSize)), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("create ipc writer: %w", err)
	}
	for off := 0; off < len(flat); off += chunkRows {
		end := min(off+chunkRows, len(flat))
		rec, err := BuildRecord(mem, beamSize, off, flat[off:end])
		if err != nil {
			w.Close()
			return err
		}
		err = w.Write(rec)
		rec.Release()
		if err != nil {
			w.Close()
			return fmt.Errorf("write record: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close ipc writer: %w", err)
	}
	logger.Log.Debug("sequences saved", "path", path, "sequences", len(flat), "beam_size", beamSize)
	return f.Close()
}

// Load reads a file written by Save.
func Load(path string) (Sequences, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sequences{}, fmt.Errorf("open sequence file: %w", err)
	}
	defer f.Close()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return Sequences{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer r.Close()

	md := r.Schema().Metadata()
	idx := md.FindKey(metaBeamSize)
	if idx < 0 {
		return Sequences{}, fmt.Errorf("%w: no %s in schema metadata", ErrCorrupt, metaBeamSize)
	}
	beamSize, err := strconv.Atoi(md.Values()[idx])
	if err != nil || beamSize < 1 {
		return Sequences{}, fmt.Errorf("%w: bad %s %q", ErrCorrupt, metaBeamSize, md.Values()[idx])
	}

	total := 0
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return Sequences{}, fmt.Errorf("%w: record %d: %v", ErrCorrupt, i, err)
		}
		total += int(rec.NumRows())
	}
	if total%beamSize != 0 {
		return Sequences{}, fmt.Errorf("%w: %d rows for beam size %d", ErrCorrupt, total, beamSize)
	}

	out := make([][]int, total)
	filled := make([]bool, total)
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return Sequences{}, fmt.Errorf("%w: record %d: %v", ErrCorrupt, i, err)
		}
		if err := ReadSequences(rec, beamSize, out, filled); err != nil {
			return Sequences{}, err
		}
	}
	logger.Log.Debug("sequences loaded", "path", path, "sequences", total, "beam_size", beamSize)
	return Sequences{BeamSize: beamSize, Tokens: out}, nil
}
