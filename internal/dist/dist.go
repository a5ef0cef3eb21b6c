package dist

import (
	"path/filepath"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/moesuiga/jgb/internal/config"
	"github.com/moesuiga/jgb/internal/pathutil"
)

// Mapper computes output paths for real source paths. Results are memoized
// per sourcePath; the memo is scoped to the Mapper so long-running processes
// get per-build isolation by constructing a fresh one.
type Mapper struct {
	opts *config.Options
	memo *ristretto.Cache
}

func NewMapper(opts *config.Options) (*Mapper, error) {
	memo, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Mapper{opts: opts, memo: memo}, nil
}

// DistPath maps sourcePath to its output path and reconciles the extension.
// Deterministic for a fixed config; idempotent per sourcePath.
func (m *Mapper) DistPath(sourcePath, ext string) string {
	var base string
	if v, ok := m.memo.Get(sourcePath); ok {
		base = v.(string)
	} else {
		base = m.distPath(sourcePath)
		m.memo.Set(sourcePath, base, int64(len(base)))
	}
	return pathutil.ReconcileExt(base, ext)
}

// distPath applies the mapping rules in order, first match wins:
// source-dir relative, alias roots, the last node_modules (or npm) segment,
// then the source-dir relative fallback.
func (m *Mapper) distPath(sourcePath string) string {
	if rel, ok := childPath(m.opts.SourceDir, sourcePath); ok {
		return filepath.Join(m.opts.OutDir, rel)
	}
	for _, a := range m.opts.Alias {
		if rel, ok := childPath(a.Path, sourcePath); ok {
			d := a.Dist
			if d == "" {
				d = "npm"
			}
			return filepath.Join(m.opts.OutDir, d, a.Name, rel)
		}
	}
	if tail, ok := stripModuleRoot(pathutil.ToUnix(sourcePath)); ok {
		return filepath.Join(m.opts.OutDir, "npm", tail)
	}
	rel, err := filepath.Rel(m.opts.SourceDir, sourcePath)
	if err != nil {
		rel = filepath.Base(sourcePath)
	}
	return filepath.Join(m.opts.OutDir, rel)
}

func childPath(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return rel, true
}

// stripModuleRoot drops everything up to and including the last
// /node_modules/ or /npm/ segment.
func stripModuleRoot(p string) (string, bool) {
	i := strings.LastIndex(p, "/node_modules/")
	if i >= 0 {
		i += len("/node_modules/")
	}
	j := strings.LastIndex(p, "/npm/")
	if j >= 0 {
		j += len("/npm/")
	}
	if i < 0 && j < 0 {
		return "", false
	}
	if i > j {
		return p[i:], true
	}
	return p[j:], true
}
