package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" { t.Fatalf("got %q err=%v", got, err) }
	if got, err := ExpandHome(""); err != nil || got != "" { t.Fatalf("got %q err=%v", got, err) }
	if got, err := ExpandHome("~"); err != nil || got != home { t.Fatalf("got %q err=%v", got, err) }
	if got, err := ExpandHome("~/models/llm"); err != nil || got != filepath.Join(home, "models", "llm") { t.Fatalf("got %q err=%v", got, err) }
}

func TestResolvePath(t *testing.T) {
	if got, err := ResolvePath(""); err != nil || got != "" { t.Fatalf("got %q err=%v", got, err) }
	got, err := ResolvePath("rel/x.gguf")
	if err != nil || !filepath.IsAbs(got) { t.Fatalf("got %q err=%v", got, err) }
}

func TestPathExistsAndIsGGUF(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "m.GGUF")
	if PathExists(p) { t.Fatalf("unexpected existence") }
	if err := os.WriteFile(p, nil, 0o644); err != nil { t.Fatalf("write: %v", err) }
	if !PathExists(p) { t.Fatalf("expected existence") }
	if !IsGGUF(p) || IsGGUF("model.bin") || IsGGUF("gguf") { t.Fatalf("IsGGUF mismatch") }
}
