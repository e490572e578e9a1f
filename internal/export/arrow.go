// Package export encodes activation results as Apache Arrow IPC streams.
package export

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"patchscope/pkg/types"
)

// ContentType is the IANA media type for Arrow IPC streams.
const ContentType = "application/vnd.apache.arrow.stream"

// Schema has one row per (layer, token).
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "layer", Type: arrow.PrimitiveTypes.Int32},
	{Name: "token_index", Type: arrow.PrimitiveTypes.Int32},
	{Name: "token_id", Type: arrow.PrimitiveTypes.Int32},
	{Name: "token", Type: arrow.BinaryTypes.String},
	{Name: "norm", Type: arrow.PrimitiveTypes.Float32},
}, nil)

// WriteActivations streams res as a single record batch, layers ascending.
func WriteActivations(w io.Writer, res *types.ActivationsResult) error {
	layers, err := sortedLayers(res.Activations)
	if err != nil {
		return err
	}
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, Schema)
	defer b.Release()
	layerB := b.Field(0).(*array.Int32Builder)
	idxB := b.Field(1).(*array.Int32Builder)
	idB := b.Field(2).(*array.Int32Builder)
	tokB := b.Field(3).(*array.StringBuilder)
	normB := b.Field(4).(*array.Float32Builder)

	for _, l := range layers {
		norms := res.Activations[l.key]
		if len(norms) != len(res.TokenIDs) {
			return fmt.Errorf("export: %s has %d norms for %d tokens", l.key, len(norms), len(res.TokenIDs))
		}
		for t, n := range norms {
			layerB.Append(int32(l.idx))
			idxB.Append(int32(t))
			idB.Append(int32(res.TokenIDs[t]))
			tok := ""
			if t < len(res.Tokens) {
				tok = res.Tokens[t]
			}
			tokB.Append(tok)
			normB.Append(n)
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(Schema), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		return fmt.Errorf("export: write record: %w", err)
	}
	return iw.Close()
}

type layerKey struct {
	key string
	idx int
}

func sortedLayers(acts map[string][]float32) ([]layerKey, error) {
	out := make([]layerKey, 0, len(acts))
	for k := range acts {
		idx, err := strconv.Atoi(strings.TrimPrefix(k, "layer_"))
		if err != nil || !strings.HasPrefix(k, "layer_") {
			return nil, fmt.Errorf("export: bad activation key %q", k)
		}
		out = append(out, layerKey{key: k, idx: idx})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].idx < out[j].idx })
	return out, nil
}
