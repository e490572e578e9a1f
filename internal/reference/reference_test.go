package reference

import (
	"context"
	"errors"
	"testing"
)

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.ContextSize != 2048 || o.Threads != 1 { t.Fatalf("defaults=%+v", o) }
	o = Options{ContextSize: 512, Threads: 8}.withDefaults()
	if o.ContextSize != 512 || o.Threads != 8 { t.Fatalf("explicit=%+v", o) }
}

func TestTrimEcho(t *testing.T) {
	if got := trimEcho("x ->", "x -> man"); got != " man" { t.Fatalf("got %q", got) }
	if got := trimEcho("x ->", " man"); got != " man" { t.Fatalf("got %q", got) }
}

func TestNewWithoutModel(t *testing.T) {
	_, err := New("", Options{})
	if err == nil { t.Fatalf("expected error") }
	if !Available && !errors.Is(err, ErrUnavailable) { t.Fatalf("expected ErrUnavailable, got %v", err) }
}

func TestStubComplete(t *testing.T) {
	if Available { t.Skip("llama build") }
	var g Generator
	if _, err := g.Complete(context.Background(), "x", 1); !errors.Is(err, ErrUnavailable) { t.Fatalf("got %v", err) }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Complete(ctx, "x", 1); !errors.Is(err, context.Canceled) { t.Fatalf("got %v", err) }
}
