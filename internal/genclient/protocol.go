// Package genclient moves generation requests over Arrow Flight. A Client
// is an evaluation.Model backed by a remote generator; a Server exposes any
// evaluation.Model to such clients.
//
// One DoExchange call carries one batch. The request stream holds a single
// record of encoder input ids and attention masks, with the generation
// parameters as a JSON command in the flight descriptor. The reply is one
// record of generated sequences, NumReturnSequences per input row.
package genclient

import (
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-amreval/internal/config"
	"github.com/23skdu/longbow-amreval/internal/evaluation"
	"github.com/23skdu/longbow-amreval/internal/tokenstore"
)

const actionGenerate = "generate"

type command struct {
	Action string                  `json:"action"`
	Params config.GenerationParams `json:"params"`
}

var (
	requestSchema = arrow.NewSchema([]arrow.Field{
		{Name: "input_ids", Type: tokenstore.ListType},
		{Name: "attention_mask", Type: tokenstore.ListType, Nullable: true},
	}, nil)

	replySchema = arrow.NewSchema([]arrow.Field{
		{Name: "sequences", Type: tokenstore.ListType},
	}, nil)
)

func encodeCommand(params config.GenerationParams) ([]byte, error) {
	return json.Marshal(command{Action: actionGenerate, Params: params})
}

func decodeCommand(b []byte) (config.GenerationParams, error) {
	var c command
	if err := json.Unmarshal(b, &c); err != nil {
		return config.GenerationParams{}, fmt.Errorf("decode command: %w", err)
	}
	if c.Action != actionGenerate {
		return config.GenerationParams{}, fmt.Errorf("unknown action %q", c.Action)
	}
	return c.Params, nil
}

func requestRecord(mem memory.Allocator, in evaluation.Encoding) (arrow.Record, error) {
	b := array.NewRecordBuilder(mem, requestSchema)
	defer b.Release()
	if err := tokenstore.AppendRows(b.Field(0).(*array.ListBuilder), in.InputIDs); err != nil {
		return nil, fmt.Errorf("input_ids: %w", err)
	}
	mask := b.Field(1).(*array.ListBuilder)
	if in.AttentionMask == nil {
		for range in.InputIDs {
			mask.AppendNull()
		}
	} else if err := tokenstore.AppendRows(mask, in.AttentionMask); err != nil {
		return nil, fmt.Errorf("attention_mask: %w", err)
	}
	return b.NewRecord(), nil
}

func readRequest(rec arrow.Record) (evaluation.Encoding, error) {
	var enc evaluation.Encoding
	col, err := tokenstore.Column(rec, "input_ids")
	if err != nil {
		return enc, err
	}
	if enc.InputIDs, err = tokenstore.Rows(col); err != nil {
		return enc, err
	}
	col, err = tokenstore.Column(rec, "attention_mask")
	if err != nil {
		return enc, err
	}
	if col.NullN() == col.Len() {
		return enc, nil
	}
	enc.AttentionMask, err = tokenstore.Rows(col)
	return enc, err
}

func replyRecord(mem memory.Allocator, seqs [][]int) (arrow.Record, error) {
	b := array.NewRecordBuilder(mem, replySchema)
	defer b.Release()
	if err := tokenstore.AppendRows(b.Field(0).(*array.ListBuilder), seqs); err != nil {
		return nil, err
	}
	return b.NewRecord(), nil
}

func readSequences(rec arrow.Record) ([][]int, error) {
	col, err := tokenstore.Column(rec, "sequences")
	if err != nil {
		return nil, err
	}
	return tokenstore.Rows(col)
}
