package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"patchscope/internal/testutil"
	"patchscope/pkg/types"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func tinyModel(t *testing.T) string {
	t.Helper()
	return testutil.WriteTinyLlama(t, t.TempDir(), testutil.DefaultTiny)
}

func TestKeygen(t *testing.T) {
	out, err := run(t, "keygen")
	if err != nil { t.Fatalf("keygen: %v", err) }
	if !strings.Contains(out, "key:  ps-") || !strings.Contains(out, "hash: $2") { t.Fatalf("unexpected output: %q", out) }
}

func TestConfigPrintLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patchscope.yaml")
	if err := os.WriteFile(path, []byte("addr: \":7000\"\nthreads: 3\n"), 0o644); err != nil { t.Fatal(err) }
	t.Setenv("PATCHSCOPE_THREADS", "5")

	out, err := run(t, "config", "print", "--config", path, "--log-level", "debug")
	if err != nil { t.Fatalf("config print: %v", err) }
	for _, want := range []string{":7000", "threads: 5", "level: debug", "max_wait: 30s"} {
		if !strings.Contains(out, want) { t.Fatalf("missing %q in:\n%s", want, out) }
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	if _, err := run(t, "config", "print", "-o", "xml"); err == nil || !strings.Contains(err.Error(), "xml") { t.Fatalf("expected format error, got %v", err) }
}

func TestInfoRequiresModel(t *testing.T) {
	if _, err := run(t, "info"); err == nil || !strings.Contains(err.Error(), "no model configured") { t.Fatalf("expected missing model error, got %v", err) }
}

func TestInfoJSON(t *testing.T) {
	out, err := run(t, "info", "--model-path", tinyModel(t), "--model-id", "tiny", "-o", "json")
	if err != nil { t.Fatalf("info: %v", err) }
	var info types.ModelInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil { t.Fatalf("json: %v\n%s", err, out) }
	if info.ModelID != "tiny" || info.NumLayers != testutil.DefaultTiny.Layers { t.Fatalf("unexpected info: %+v", info) }
}

func TestActivationsTableAndArrow(t *testing.T) {
	arrowPath := filepath.Join(t.TempDir(), "acts.arrows")
	out, err := run(t, "activations", "Harry Car", "--model-path", tinyModel(t), "--layers", "0,-1", "--arrow", arrowPath)
	if err != nil { t.Fatalf("activations: %v", err) }
	if !strings.Contains(out, "layer_0") || !strings.Contains(out, "layer_-1") { t.Fatalf("unexpected table:\n%s", out) }
	if st, err := os.Stat(arrowPath); err != nil || st.Size() == 0 { t.Fatalf("arrow file: %v", err) }
}

func TestPatchRecordsRun(t *testing.T) {
	model := tinyModel(t)
	dsn := filepath.Join(t.TempDir(), "runs.db")
	out, err := run(t, "patch", "--model-path", model, "--store-driver", "sqlite", "--store-dsn", dsn,
		"--target", "Man -> man, x ->", "--source-layer", "1", "--target-layer", "1", "--n-tokens", "2", "-o", "json")
	if err != nil { t.Fatalf("patch: %v", err) }
	var res types.PatchscopeResult
	if err := json.Unmarshal([]byte(out), &res); err != nil { t.Fatalf("json: %v\n%s", err, out) }
	if res.SourcePrompt != "Harry" || res.PatchConfig.TargetTokenIdx != -3 { t.Fatalf("unexpected result: %+v", res) }

	out, err = run(t, "runs", "--store-driver", "sqlite", "--store-dsn", dsn, "-o", "json")
	if err != nil { t.Fatalf("runs: %v", err) }
	var runs types.RunsResponse
	if err := json.Unmarshal([]byte(out), &runs); err != nil { t.Fatalf("json: %v\n%s", err, out) }
	if len(runs.Runs) != 1 || runs.Runs[0].Kind != "patchscope" { t.Fatalf("unexpected runs: %+v", runs.Runs) }

	out, err = run(t, "runs", runs.Runs[0].ID, "--store-driver", "sqlite", "--store-dsn", dsn)
	if err != nil { t.Fatalf("runs id: %v", err) }
	if !strings.Contains(out, runs.Runs[0].ID) { t.Fatalf("run table missing id:\n%s", out) }
}

func TestRunsRequiresStore(t *testing.T) {
	if _, err := run(t, "runs"); err == nil { t.Fatalf("expected error without store") }
}

func TestModelsMarksLoaded(t *testing.T) {
	model := tinyModel(t)
	out, err := run(t, "models", "--models-dir", filepath.Dir(model), "--model-path", filepath.Base(model), "-o", "json")
	if err != nil { t.Fatalf("models: %v", err) }
	var body types.ModelsResponse
	if err := json.Unmarshal([]byte(out), &body); err != nil { t.Fatalf("json: %v\n%s", err, out) }
	if len(body.Models) != 1 || !body.Models[0].Loaded || body.Models[0].Family != "llama" { t.Fatalf("unexpected models: %+v", body.Models) }
}
