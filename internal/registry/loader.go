package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"patchscope/internal/common/fsutil"
	"patchscope/internal/gguf"
	"patchscope/pkg/types"
)

// GGUFScanner lists *.gguf files in a directory.
type GGUFScanner struct {
	// Enrich reads architecture, name and quantization from each file's
	// header. Unreadable files are still listed, just without metadata.
	Enrich bool
}

// NewGGUFScanner returns a scanner that enriches from GGUF metadata.
func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{Enrich: true} }

// Scan builds a model list from dir. ID is the full filename (including
// extension); Path is the absolute file path. Results are sorted by ID.
func (s *GGUFScanner) Scan(dir string) ([]types.Model, error) {
	abs, err := fsutil.ResolvePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() || !fsutil.IsGGUF(e.Name()) {
			continue
		}
		m := types.Model{ID: e.Name(), Name: e.Name(), Path: filepath.Join(abs, e.Name())}
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
		}
		if s.Enrich {
			enrich(&m)
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans dir with metadata enrichment.
func LoadDir(dir string) ([]types.Model, error) {
	return NewGGUFScanner().Scan(dir)
}

// Inspect describes a single GGUF file.
func Inspect(path string) (types.Model, error) {
	abs, err := fsutil.ResolvePath(path)
	if err != nil {
		return types.Model{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return types.Model{}, err
	}
	m := types.Model{ID: filepath.Base(abs), Name: filepath.Base(abs), Path: abs, SizeBytes: info.Size()}
	f, err := gguf.Open(abs)
	if err != nil {
		return m, err
	}
	defer f.Close()
	describe(&m, f)
	return m, nil
}

func enrich(m *types.Model) {
	f, err := gguf.Open(m.Path)
	if err != nil {
		return
	}
	defer f.Close()
	describe(m, f)
}

func describe(m *types.Model, f *gguf.File) {
	if name := f.Name(); name != "" {
		m.Name = name
	}
	m.Family = f.Architecture()
	m.Quant = dominantType(f)
}

// dominantType is the storage type holding the most matrix elements.
func dominantType(f *gguf.File) string {
	counts := map[gguf.GGMLType]uint64{}
	for _, t := range f.Tensors {
		if len(t.Dims) >= 2 {
			counts[t.Type] += t.Elements()
		}
	}
	var best gguf.GGMLType
	var bestN uint64
	for typ, n := range counts {
		if n > bestN || (n == bestN && typ < best) {
			best, bestN = typ, n
		}
	}
	if bestN == 0 {
		return ""
	}
	return best.String()
}
