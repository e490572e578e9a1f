package export

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	"patchscope/pkg/types"
)

func TestWriteActivations(t *testing.T) {
	res := &types.ActivationsResult{
		Activations: map[string][]float32{"layer_2": {3, 4}, "layer_0": {1, 2}, "layer_-1": {5, 6}},
		Tokens:      []string{"<s>", "▁Harry"},
		TokenIDs:    []int{1, 300},
	}
	var buf bytes.Buffer
	if err := WriteActivations(&buf, res); err != nil { t.Fatalf("write: %v", err) }

	rdr, err := ipc.NewReader(&buf)
	if err != nil { t.Fatalf("reader: %v", err) }
	defer rdr.Release()
	if !rdr.Schema().Equal(Schema) { t.Fatalf("schema mismatch: %v", rdr.Schema()) }
	rows := 0
	var layers []int32
	var tokens []string
	var norms []float32
	for rdr.Next() {
		rec := rdr.Record()
		rows += int(rec.NumRows())
		l := rec.Column(0).(*array.Int32)
		tok := rec.Column(3).(*array.String)
		n := rec.Column(4).(*array.Float32)
		for i := 0; i < int(rec.NumRows()); i++ {
			layers = append(layers, l.Value(i))
			tokens = append(tokens, tok.Value(i))
			norms = append(norms, n.Value(i))
		}
	}
	if err := rdr.Err(); err != nil { t.Fatalf("read: %v", err) }
	if rows != 6 { t.Fatalf("rows=%d want tokens x layers = 6", rows) }
	if layers[0] != -1 || layers[2] != 0 || layers[5] != 2 { t.Fatalf("layers not sorted: %v", layers) }
	if tokens[1] != "▁Harry" || norms[3] != 2 { t.Fatalf("tokens=%v norms=%v", tokens, norms) }
}

func TestWriteActivationsRejectsBadInput(t *testing.T) {
	var buf bytes.Buffer
	bad := &types.ActivationsResult{Activations: map[string][]float32{"nope": {1}}, TokenIDs: []int{1}}
	if err := WriteActivations(&buf, bad); err == nil { t.Fatalf("expected key error") }
	short := &types.ActivationsResult{Activations: map[string][]float32{"layer_0": {1}}, TokenIDs: []int{1, 2}}
	if err := WriteActivations(&buf, short); err == nil { t.Fatalf("expected length error") }
}
