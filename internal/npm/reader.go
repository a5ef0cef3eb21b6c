package npm

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	syncx "github.com/ije/gox/sync"
)

// Reader reads and memoizes package.json records. It is safe for concurrent
// use; a second caller with an in-flight key awaits the first computation.
type Reader struct {
	cache  sync.Map // absolute pkgfile -> *Package
	flight syncx.KeyedMutex
}

func NewReader() *Reader {
	return &Reader{}
}

// Read returns the record for dir/package.json, caching by the absolute
// manifest path. On first read, a "source" field is kept only when the
// manifest's canonical path differs from its declared path, which indicates
// the package is reached through a symlink (a linked source checkout). A
// compiled artifact never keeps "source".
func (r *Reader) Read(dir string) (*Package, error) {
	pkgfile := filepath.Join(dir, "package.json")
	if abs, err := filepath.Abs(pkgfile); err == nil {
		pkgfile = abs
	}
	if v, ok := r.cache.Load(pkgfile); ok {
		return v.(*Package), nil
	}

	unlock := r.flight.Lock(pkgfile)
	defer unlock()

	if v, ok := r.cache.Load(pkgfile); ok {
		return v.(*Package), nil
	}

	data, err := os.ReadFile(pkgfile)
	if err != nil {
		return nil, err
	}
	var raw PackageJSONRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	pkg := raw.ToPackage(pkgfile, filepath.Dir(pkgfile))
	if pkg.Source != "" || pkg.SourceAlias != nil {
		realpath, err := filepath.EvalSymlinks(pkgfile)
		if err != nil || realpath == pkgfile {
			pkg.Source = ""
			pkg.SourceAlias = nil
		}
	}
	var fields map[string]any
	if json.Unmarshal(data, &fields) == nil {
		pkg.Fields = fields
	}

	r.cache.Store(pkgfile, pkg)
	return pkg, nil
}

// FindPackage walks parents upward from dir and returns the first readable
// package.json, never crossing out of a node_modules boundary. Failures at
// each level are swallowed; nil means no package.
func (r *Reader) FindPackage(dir string) *Package {
	for dir != "" && filepath.Base(dir) != "node_modules" {
		if pkg, err := r.Read(dir); err == nil {
			return pkg
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil
}

// BrowserField returns the package's browser field for the given target
// ("browser" and "" consult it, anything else does not). An object field
// keyed by the package's own name is dereferenced once.
func BrowserField(pkg *Package, target string) any {
	if target != "" && target != "browser" {
		return nil
	}
	if pkg.Browser.Map != nil {
		if own, ok := pkg.Browser.Map[pkg.Name]; ok && pkg.Name != "" {
			return own
		}
		return pkg.Browser.Map
	}
	if pkg.Browser.Str != "" {
		return pkg.Browser.Str
	}
	return nil
}

// PackageEntries returns the ordered candidate entry paths of a package:
// source, browser, main, module. Non-string values are dropped, "." / "./"
// default to "index", and every entry is resolved against the package dir.
func PackageEntries(pkg *Package, target string) []string {
	var browser string
	if s, ok := BrowserField(pkg, target).(string); ok {
		browser = s
	}
	entries := make([]string, 0, 4)
	for _, main := range []string{pkg.Source, browser, pkg.Main, pkg.Module} {
		if main == "" {
			continue
		}
		if main == "." || main == "./" {
			main = "index"
		}
		entries = append(entries, filepath.Join(pkg.Pkgdir, main))
	}
	return entries
}
