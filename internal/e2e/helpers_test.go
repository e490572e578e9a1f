package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"patchscope/internal/analyzer"
	"patchscope/internal/auth"
	"patchscope/internal/httpapi"
	"patchscope/internal/registry"
	"patchscope/internal/store"
	"patchscope/internal/testutil"
)

// stack is a server wired the way `patchscope serve` wires it.
type stack struct {
	srv      *httptest.Server
	analyzer *analyzer.Analyzer
	store    *store.Store
}

type stackOptions struct {
	apiKeyHash string
	noStore    bool
}

// newStack writes a tiny model into a fresh models dir and serves it.
func newStack(t *testing.T, opts stackOptions) *stack {
	t.Helper()
	dir := t.TempDir()
	modelPath := testutil.WriteTinyLlama(t, dir, testutil.DefaultTiny)
	s := &stack{}

	var recorder analyzer.Recorder
	if !opts.noStore {
		st, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "runs.db"))
		if err != nil { t.Fatalf("store: %v", err) }
		t.Cleanup(func() { _ = st.Close() })
		s.store, recorder = st, st
	}
	a, err := analyzer.New(analyzer.Config{ModelPath: modelPath, ModelID: "tiny", Threads: 2, Recorder: recorder})
	if err != nil { t.Fatalf("analyzer: %v", err) }
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	s.analyzer = a

	catalog := registry.NewCatalog(a.Path())
	models, err := registry.NewGGUFScanner().Scan(dir)
	if err != nil { t.Fatalf("scan models: %v", err) }
	catalog.Set(models)

	mopts := []httpapi.Option{httpapi.WithModels(catalog)}
	if s.store != nil {
		mopts = append(mopts, httpapi.WithRuns(s.store))
	}
	if authn := auth.New(opts.apiKeyHash); authn != nil {
		mopts = append(mopts, httpapi.WithAuth(authn.Middleware))
	}
	s.srv = httptest.NewServer(httpapi.NewMux(a, mopts...))
	t.Cleanup(s.srv.Close)
	return s
}

// apiResponse is the union of the success and error envelopes.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    int             `json:"code"`
}

func decodeEnvelope(t *testing.T, body []byte) apiResponse {
	t.Helper()
	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil { t.Fatalf("decode %q: %v", body, err) }
	return env
}

func httpGet(t *testing.T, url string, header ...string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil { t.Fatalf("new req: %v", err) }
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil { t.Fatalf("do req: %v", err) }
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload any, header ...string) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil { t.Fatalf("marshal: %v", err) }
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(b))
	if err != nil { t.Fatalf("new req: %v", err) }
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil { t.Fatalf("do req: %v", err) }
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
