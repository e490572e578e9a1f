// Package cli renders analysis results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"

	"patchscope/pkg/types"
)

// Output formats accepted by --output.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// ValidFormat reports whether f is a known output format.
func ValidFormat(f string) bool { return f == FormatTable || f == FormatJSON }

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// RenderModelInfo prints the loaded model's dimensions.
func RenderModelInfo(w io.Writer, info types.ModelInfo, format string) error {
	if format == FormatJSON {
		return renderJSON(w, info)
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"model_id", info.ModelID},
		{"num_layers", info.NumLayers},
		{"hidden_size", info.HiddenSize},
		{"vocab_size", info.VocabSize},
	})
	t.Render()
	return nil
}

// RenderModels lists discovered GGUF files.
func RenderModels(w io.Writer, models []types.Model, format string) error {
	if format == FormatJSON {
		return renderJSON(w, types.ModelsResponse{Models: models})
	}
	if len(models) == 0 {
		_, _ = fmt.Fprintln(w, "(no models)")
		return nil
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"", "ID", "Name", "Family", "Quant", "Size"})
	for _, m := range models {
		mark := ""
		if m.Loaded {
			mark = "*"
		}
		t.AppendRow(table.Row{mark, m.ID, m.Name, m.Family, m.Quant, humanBytes(m.SizeBytes)})
	}
	t.Render()
	return nil
}

// RenderRuns lists stored runs, newest first.
func RenderRuns(w io.Writer, runs []types.Run, format string) error {
	if format == FormatJSON {
		return renderJSON(w, types.RunsResponse{Runs: runs})
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "(no runs)")
		return nil
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Kind", "Model", "Duration", "Created"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.ID, r.Kind, r.ModelID, (time.Duration(r.DurationMS) * time.Millisecond).String(), time.Unix(r.CreatedUnix, 0).UTC().Format(time.RFC3339)})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d runs)\n", len(runs))
	return nil
}

// RenderPatch shows both continuations side by side with the patch indices.
func RenderPatch(w io.Writer, res *types.PatchscopeResult, format string) error {
	if format == FormatJSON {
		return renderJSON(w, res)
	}
	pc := res.PatchConfig
	t := newTable(w)
	t.AppendHeader(table.Row{"", "Value"})
	t.AppendRows([]table.Row{
		{"source", fmt.Sprintf("%q  [token %d @ layer %d]", res.SourcePrompt, pc.SourceTokenIdx, pc.SourceLayerIdx)},
		{"target", fmt.Sprintf("%q  [token %d @ layer %d]", res.TargetPrompt, pc.TargetTokenIdx, pc.TargetLayerIdx)},
		{"original", strconv.Quote(res.OriginalResponse)},
		{"patched", strconv.Quote(res.PatchedResponse)},
	})
	if res.BaselineResponse != "" {
		t.AppendRow(table.Row{"llama.cpp", strconv.Quote(res.BaselineResponse)})
	}
	t.Render()
	return nil
}

// RenderActivations prints norms as a layers x tokens grid. With color set
// the grid is a heatmap; otherwise a plain table of numbers.
func RenderActivations(w io.Writer, res *types.ActivationsResult, format string, color bool) error {
	if format == FormatJSON {
		return renderJSON(w, res)
	}
	keys := layerKeys(res.Activations)
	if color {
		_, err := io.WriteString(w, heatmap(res, keys))
		return err
	}
	t := newTable(w)
	header := table.Row{"layer"}
	for _, tok := range res.Tokens {
		header = append(header, visible(tok))
	}
	t.AppendHeader(header)
	for _, k := range keys {
		row := table.Row{strings.TrimPrefix(k, "layer_")}
		for _, n := range res.Activations[k] {
			row = append(row, strconv.FormatFloat(float64(n), 'f', 2, 32))
		}
		t.AppendRow(row)
	}
	t.Render()
	return nil
}

// layerKeys sorts "layer_<n>" keys numerically.
func layerKeys(acts map[string][]float32) []string {
	keys := make([]string, 0, len(acts))
	for k := range acts {
		keys = append(keys, k)
	}
	num := func(k string) int {
		n, _ := strconv.Atoi(strings.TrimPrefix(k, "layer_"))
		return n
	}
	sort.Slice(keys, func(i, j int) bool { return num(keys[i]) < num(keys[j]) })
	return keys
}

// visible makes SentencePiece and byte-level space markers readable.
func visible(tok string) string {
	r := strings.NewReplacer("▁", "␣", "Ġ", "␣", "\n", "⏎")
	return r.Replace(tok)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
