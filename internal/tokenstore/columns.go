// Package tokenstore persists token id sequences as Arrow IPC files and
// converts them to and from Arrow list<int32> columns.
package tokenstore

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// ListType is the Arrow type of one token sequence column.
var ListType = arrow.ListOf(arrow.PrimitiveTypes.Int32)

// AppendRows appends every row to a list<int32> builder.
func AppendRows(b *array.ListBuilder, rows [][]int) error {
	vb := b.ValueBuilder().(*array.Int32Builder)
	for i, row := range rows {
		b.Append(true)
		for _, id := range row {
			if id < math.MinInt32 || id > math.MaxInt32 {
				return fmt.Errorf("row %d: token id %d overflows int32", i, id)
			}
			vb.Append(int32(id))
		}
	}
	return nil
}

// Rows copies a list<int32> column into plain slices. Null rows become nil.
func Rows(col arrow.Array) ([][]int, error) {
	list, ok := col.(*array.List)
	if !ok {
		return nil, fmt.Errorf("expected list column, got %s", col.DataType())
	}
	values, ok := list.ListValues().(*array.Int32)
	if !ok {
		return nil, fmt.Errorf("expected list<int32> column, got %s", col.DataType())
	}
	out := make([][]int, list.Len())
	for i := range out {
		if list.IsNull(i) {
			continue
		}
		start, end := list.ValueOffsets(i)
		row := make([]int, 0, end-start)
		for j := start; j < end; j++ {
			row = append(row, int(values.Value(int(j))))
		}
		out[i] = row
	}
	return out, nil
}

// Column returns the column called name, or an error naming the schema.
func Column(rec arrow.Record, name string) (arrow.Array, error) {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("missing column %q in schema %s", name, rec.Schema())
	}
	return rec.Column(idx[0]), nil
}
