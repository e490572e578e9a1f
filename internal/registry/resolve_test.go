package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, base, model, tag, body string) {
	t.Helper()
	dir := filepath.Join(base, "manifests", "registry.ollama.ai", "library", model)
	if err := os.MkdirAll(dir, 0o755); err != nil { t.Fatalf("mkdir: %v", err) }
	if err := os.WriteFile(filepath.Join(dir, tag), []byte(body), 0o644); err != nil { t.Fatalf("write: %v", err) }
}

func TestResolvePathAndModelsDir(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "m.gguf")
	if err := os.WriteFile(p, nil, 0o644); err != nil { t.Fatalf("write: %v", err) }
	if got, err := Resolve(p, ""); err != nil || got != p { t.Fatalf("direct path: %q %v", got, err) }
	if got, err := Resolve("m.gguf", dir); err != nil || got != p { t.Fatalf("models dir: %q %v", got, err) }
	if _, err := Resolve("other.gguf", dir); err == nil || !strings.Contains(err.Error(), "not found") { t.Fatalf("expected not found, got %v", err) }
	if _, err := Resolve("", dir); err == nil { t.Fatalf("expected error for empty ref") }
}

func TestResolveOllama(t *testing.T) {
	base := t.TempDir()
	t.Setenv("OLLAMA_MODELS", base)
	if err := os.MkdirAll(filepath.Join(base, "blobs"), 0o755); err != nil { t.Fatalf("mkdir: %v", err) }
	blob := filepath.Join(base, "blobs", "sha256-abc123")
	if err := os.WriteFile(blob, nil, 0o644); err != nil { t.Fatalf("write: %v", err) }
	writeManifest(t, base, "llama3.2", "1b", `{"schemaVersion":2,"layers":[{"mediaType":"application/vnd.ollama.image.template","digest":"sha256:zzz"},{"mediaType":"application/vnd.ollama.image.model","digest":"sha256:abc123","size":1}]}`)
	writeManifest(t, base, "llama3.2", "latest", `{"schemaVersion":2,"layers":[{"mediaType":"application/vnd.ollama.image.model","digest":"sha256:abc123"}]}`)
	writeManifest(t, base, "nolayer", "latest", `{"schemaVersion":2,"layers":[]}`)
	writeManifest(t, base, "noblob", "latest", `{"schemaVersion":2,"layers":[{"mediaType":"application/vnd.ollama.image.model","digest":"sha256:gone"}]}`)

	if got, err := Resolve("llama3.2:1b", t.TempDir()); err != nil || got != blob { t.Fatalf("tagged: %q %v", got, err) }
	if got, err := ResolveOllama("llama3.2"); err != nil || got != blob { t.Fatalf("default tag: %q %v", got, err) }
	for _, name := range []string{"nolayer", "noblob", "unknown:7b"} {
		if _, err := ResolveOllama(name); err == nil { t.Fatalf("%s: expected error", name) }
	}
}
