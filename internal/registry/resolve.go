package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"patchscope/internal/common/fsutil"
)

const (
	// DefaultTag is used for ollama names without ":tag".
	DefaultTag = "latest"
	// MediaTypeModel marks the GGUF layer in an ollama manifest.
	MediaTypeModel = "application/vnd.ollama.image.model"
)

type manifest struct {
	SchemaVersion int `json:"schemaVersion"`
	Layers        []struct {
		MediaType string `json:"mediaType"`
		Digest    string `json:"digest"`
		Size      int64  `json:"size"`
	} `json:"layers"`
}

// Resolve turns a model reference into a file path. It accepts, in order:
// an existing path, a file name inside modelsDir, or an ollama name such
// as "llama3.2:1b".
func Resolve(ref, modelsDir string) (string, error) {
	if ref == "" {
		return "", errors.New("empty model reference")
	}
	p, err := fsutil.ResolvePath(ref)
	if err != nil {
		return "", err
	}
	if st, err := os.Stat(p); err == nil && !st.IsDir() {
		return p, nil
	}
	if modelsDir != "" && !strings.ContainsAny(ref, `/\`) {
		dir, err := fsutil.ResolvePath(modelsDir)
		if err != nil {
			return "", err
		}
		candidate := filepath.Join(dir, ref)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	if fsutil.IsGGUF(ref) || strings.ContainsAny(ref, `/\`) {
		return "", fmt.Errorf("model file not found: %s", ref)
	}
	return ResolveOllama(ref)
}

// OllamaDir is $OLLAMA_MODELS or ~/.ollama/models.
func OllamaDir() (string, error) {
	if env := os.Getenv("OLLAMA_MODELS"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".ollama", "models"), nil
}

// ResolveOllama finds the GGUF blob for an ollama library model.
func ResolveOllama(name string) (string, error) {
	model, tag, ok := strings.Cut(name, ":")
	if !ok || tag == "" {
		tag = DefaultTag
	}
	base, err := OllamaDir()
	if err != nil {
		return "", err
	}
	manifestPath := filepath.Join(base, "manifests", "registry.ollama.ai", "library", model, tag)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", fmt.Errorf("ollama manifest for %s: %w", name, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("ollama manifest for %s: %w", name, err)
	}
	for _, l := range m.Layers {
		if l.MediaType != MediaTypeModel {
			continue
		}
		blob := filepath.Join(base, "blobs", strings.Replace(l.Digest, ":", "-", 1))
		if _, err := os.Stat(blob); err != nil {
			return "", fmt.Errorf("ollama blob for %s: %w", name, err)
		}
		return blob, nil
	}
	return "", fmt.Errorf("ollama manifest for %s has no model layer", name)
}
