package resolver

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	syncx "github.com/ije/gox/sync"

	"github.com/moesuiga/jgb/internal/config"
	"github.com/moesuiga/jgb/internal/npm"
	"github.com/moesuiga/jgb/internal/pathutil"
)

// Resolved is the result of a successful resolution. RealPath points to an
// existing regular file (or FIFO) at the moment of return, except when the
// request was elided by an alias value of false, in which case RealPath is
// empty and the caller skips the dependency.
type Resolved struct {
	RealPath string
	Pkg      *npm.Package
}

// Skipped reports an intentionally elided resolution.
func (r *Resolved) Skipped() bool {
	return r.RealPath == ""
}

// ModuleNotFoundError is returned by Resolve when every strategy is
// exhausted. Everything below Resolve treats lookup failures as expected
// negatives.
type ModuleNotFoundError struct {
	Request string
	FromDir string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("cannot find module '%s' from '%s'", e.Request, e.FromDir)
}

// Resolver maps (request, parent) pairs to files on disk using the alias
// table, extension probing, package manifests and the upward node_modules
// walk. It may be private to one asset or shared across a worker pool; the
// cache is append-only and guarded so concurrent callers with the same key
// never compute twice.
type Resolver struct {
	opts *config.Options
	pkgs *npm.Reader

	cache  sync.Map // dirname(parent) + ":" + request -> *Resolved
	flight syncx.KeyedMutex

	rootOnce sync.Once
	rootPkg  *npm.Package
}

func New(opts *config.Options, pkgs *npm.Reader) *Resolver {
	if pkgs == nil {
		pkgs = npm.NewReader()
	}
	return &Resolver{opts: opts, pkgs: pkgs}
}

// Packages exposes the package reader sharing this resolver's cache.
func (r *Resolver) Packages() *npm.Reader {
	return r.pkgs
}

// Resolve maps a request string seen in parent to a concrete file. The
// result is memoized per (dirname(parent), request); the cache lives for the
// whole build and invalidation is the caller's concern.
func (r *Resolver) Resolve(request, parent string) (*Resolved, error) {
	if request == "" {
		return nil, &ModuleNotFoundError{Request: request, FromDir: filepath.Dir(parent)}
	}
	key := filepath.Dir(parent) + ":" + request
	if v, ok := r.cache.Load(key); ok {
		return v.(*Resolved), nil
	}

	unlock := r.flight.Lock(key)
	defer unlock()

	if v, ok := r.cache.Load(key); ok {
		return v.(*Resolved), nil
	}
	res, err := r.resolve(request, parent)
	if err != nil {
		return nil, err
	}
	r.cache.Store(key, res)
	return res, nil
}

// moduleRef describes where a request may live: inside a node_modules dir,
// at an absolute path, or as a still-bare module name.
type moduleRef struct {
	name     string
	subPath  string
	dir      string
	filePath string
}

func (r *Resolver) resolve(request, parent string) (*Resolved, error) {
	dir := r.opts.SourceDir
	fromDir, _ := os.Getwd()
	if parent != "" {
		dir = filepath.Dir(parent)
		fromDir = dir
	}

	filename := request
	if parent != "" {
		filename = r.ResolveFilename(filename, dir)
	}
	filename, elided := r.loadAlias(filename, dir)
	if elided {
		return &Resolved{}, nil
	}

	exts := r.extensions(parent)
	m := r.resolveModule(filename, dir)

	// candidates load against the package that encloses them, so the result
	// carries the resolved file's own package
	var res *Resolved
	switch {
	case m.dir != "":
		pkg := r.pkgs.FindPackage(m.dir)
		if m.subPath != "" {
			res = r.loadAsFile(m.filePath, exts, pkg)
		}
		if res == nil {
			res = r.loadDirectory(m.filePath, exts, pkg)
		}
	case m.filePath != "":
		res = r.loadRelative(m.filePath, exts, r.pkgs.FindPackage(filepath.Dir(m.filePath)))
	case parent != "":
		file := filepath.Join(dir, filename)
		res = r.loadRelative(file, exts, r.pkgs.FindPackage(filepath.Dir(file)))
	}
	if res == nil {
		return nil, &ModuleNotFoundError{Request: request, FromDir: fromDir}
	}
	if res.Pkg == nil {
		res.Pkg = r.pkgs.FindPackage(filepath.Dir(res.RealPath))
	}
	return res, nil
}

// resolveModule decides the shape of a canonicalized request: an absolute
// path resolves as-is, anything module-like is searched for in enclosing
// node_modules dirs, and the rest stays bare for the caller to place.
func (r *Resolver) resolveModule(filename, dir string) moduleRef {
	if filepath.IsAbs(filename) {
		return moduleRef{filePath: filename}
	}
	if m, ok := r.findNodeModulePath(filename, dir); ok {
		return m
	}
	parts := ModuleParts(filename)
	m := moduleRef{name: parts[0]}
	if len(parts) > 1 {
		m.subPath = path.Join(parts[1:]...)
	}
	return m
}

// findNodeModulePath walks dir upward looking for node_modules/<head>.
// Directories already named node_modules are skipped so the walk never
// probes node_modules/node_modules.
func (r *Resolver) findNodeModulePath(filename, dir string) (moduleRef, bool) {
	parts := ModuleParts(filename)
	if parts[0] == "" || strings.HasPrefix(parts[0], ".") {
		return moduleRef{}, false
	}
	for dir != "" {
		if filepath.Base(dir) == "node_modules" {
			dir = filepath.Dir(dir)
		}
		moduleDir := filepath.Join(dir, "node_modules", parts[0])
		if st, err := os.Stat(moduleDir); err == nil && st.IsDir() {
			m := moduleRef{
				name:     parts[0],
				dir:      moduleDir,
				filePath: filepath.Join(dir, "node_modules", filename),
			}
			if len(parts) > 1 {
				m.subPath = path.Join(parts[1:]...)
			}
			return m, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return moduleRef{}, false
}

// extensions returns the probe order for a resolution: the empty string
// first (fully specified requests win), then the parent file's extension,
// then the configured list.
func (r *Resolver) extensions(parent string) []string {
	pe := ""
	if parent != "" {
		pe = path.Ext(pathutil.ToUnix(parent))
	}
	exts := make([]string, 0, len(r.opts.Extensions)+2)
	exts = append(exts, "")
	if pe != "" {
		exts = append(exts, pe)
	}
	for _, e := range r.opts.Extensions {
		if e != pe {
			exts = append(exts, e)
		}
	}
	return exts
}

// ResolveFilename canonicalizes a request by its first character: '/' is
// source-root absolute unless the literal path exists, '~' roots at the
// nearest node_modules package or rootDir, '.' is relative to dir, and
// anything else is a bare module name.
func (r *Resolver) ResolveFilename(filename, dir string) string {
	if filename == "" {
		return filename
	}
	switch filename[0] {
	case '/':
		if pathExists(filename) {
			return filename
		}
		return filepath.Join(r.opts.SourceDir, filename[1:])
	case '~':
		d := dir
		for d != r.opts.RootDir && filepath.Base(filepath.Dir(d)) != "node_modules" {
			parent := filepath.Dir(d)
			if parent == d {
				break
			}
			d = parent
		}
		return filepath.Join(d, strings.TrimPrefix(filename[1:], "/"))
	case '.':
		return filepath.Join(dir, filename)
	default:
		return path.Clean(pathutil.ToUnix(filename))
	}
}

// loadRelative tries the path as a file, then as a directory.
func (r *Resolver) loadRelative(file string, exts []string, pkg *npm.Package) *Resolved {
	if res := r.loadAsFile(file, exts, pkg); res != nil {
		return res
	}
	return r.loadDirectory(file, exts, pkg)
}

// loadAsFile returns the first expanded candidate that is a regular file or
// a FIFO.
func (r *Resolver) loadAsFile(file string, exts []string, pkg *npm.Package) *Resolved {
	for _, f := range r.expandFile(file, exts, pkg, true) {
		if isFile(f) {
			return &Resolved{RealPath: f, Pkg: pkg}
		}
	}
	return nil
}

// expandFile emits path+ext for every extension; when alias expansion is on,
// the aliased form of each extended name expands one more level (aliases may
// rewrite extended names, but only once).
func (r *Resolver) expandFile(file string, exts []string, pkg *npm.Package, expandAliases bool) []string {
	var res []string
	for _, ext := range exts {
		f := file + ext
		if expandAliases {
			if alias := r.resolveAliases(f, pkg); alias != f && alias != "" {
				res = append(res, r.expandFile(alias, exts, pkg, false)...)
			}
		}
		res = append(res, f)
	}
	return res
}

// loadDirectory reads the directory's package.json and probes its entry
// candidates, falling back to <dir>/index. A package that declares a
// miniprogram dist dir gets that dir's index probed before the fallback.
func (r *Resolver) loadDirectory(dir string, exts []string, pkg *npm.Package) *Resolved {
	if p, err := r.pkgs.Read(dir); err == nil {
		pkg = p
		for _, entry := range npm.PackageEntries(p, r.opts.Target) {
			if entry == dir {
				continue
			}
			if res := r.loadAsFile(entry, exts, pkg); res != nil {
				return res
			}
			if isDir(entry) {
				if res := r.loadDirectory(entry, exts, pkg); res != nil {
					return res
				}
			}
		}
		if p.Miniprogram != "" {
			if res := r.loadAsFile(filepath.Join(dir, p.Miniprogram, "index"), exts, pkg); res != nil {
				return res
			}
		}
	}
	return r.loadAsFile(filepath.Join(dir, "index"), exts, pkg)
}

// ModuleParts splits a request on '/'; a scoped head like @scope/name counts
// as a single segment.
func ModuleParts(name string) []string {
	parts := strings.Split(pathutil.ToUnix(name), "/")
	if strings.HasPrefix(parts[0], "@") && len(parts) > 1 {
		parts = append([]string{parts[0] + "/" + parts[1]}, parts[2:]...)
	}
	return parts
}

func isFile(name string) bool {
	st, err := os.Stat(name)
	if err != nil {
		return false
	}
	mode := st.Mode()
	return mode.IsRegular() || mode&os.ModeNamedPipe != 0
}

func isDir(name string) bool {
	st, err := os.Stat(name)
	return err == nil && st.IsDir()
}

func pathExists(name string) bool {
	_, err := os.Lstat(name)
	return err == nil
}
