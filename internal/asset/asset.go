package asset

import (
	"encoding/base64"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/ije/esbuild-internal/xxhash"
	logx "github.com/ije/gox/log"
	"github.com/ije/gox/set"

	"github.com/moesuiga/jgb/internal/cachedb"
	"github.com/moesuiga/jgb/internal/config"
	"github.com/moesuiga/jgb/internal/dist"
	"github.com/moesuiga/jgb/internal/jsonc"
	"github.com/moesuiga/jgb/internal/npm"
	"github.com/moesuiga/jgb/internal/pathutil"
	"github.com/moesuiga/jgb/internal/resolver"
)

// Env is the shared machinery an asset runs against. When the worker pool
// publishes a shared Resolver it is set here; otherwise each asset builds a
// private one with identical semantics.
type Env struct {
	Options   *config.Options
	Resolver  *resolver.Resolver
	Mapper    *dist.Mapper
	Log       *logx.Logger
	Cache     *cachedb.DB
	Callbacks *Callbacks
}

// CollectContext is handed to manifest-collection callbacks; callbacks add
// extra absolute paths to Dependences to pull them into the graph.
type CollectContext struct {
	Dependences *set.Set[string]
	Manifest    map[string]any
	Ctx         *Asset
}

// Callbacks is the typed dependency-collection surface the build consumes.
type Callbacks struct {
	CollectAppJSON  func(*CollectContext)
	CollectPageJSON func(*CollectContext)
}

// DependencyOpts annotates one dependency edge. Meta is free-form plugin
// metadata.
type DependencyOpts struct {
	Dynamic          bool
	IncludedInParent bool
	Meta             map[string]any
}

// Generated is one emitted output of an asset.
type Generated struct {
	Code []byte
	Ext  string
	Map  *SourceMap
}

// Asset is one discovered file moving through the lifecycle
// load -> pretransform -> collect dependencies -> transform -> generate ->
// output. The phases run strictly in sequence, exactly once per Process.
type Asset struct {
	Name         string
	ID           string
	Basename     string
	RelativeName string

	Contents  []byte
	AST       any
	Generated []Generated
	Hash      uint64
	DistPath  string

	Dependencies map[string]DependencyOpts
	CacheData    map[string]any
	Processed    bool
	Pkg          *npm.Package

	env      *Env
	resolver *resolver.Resolver
	typ      Type
}

func New(name string, env *Env) *Asset {
	res := env.Resolver
	if res == nil {
		res = resolver.New(env.Options, nil)
	}
	relName, err := filepath.Rel(env.Options.SourceDir, name)
	if err != nil {
		relName = filepath.Base(name)
	}
	return &Asset{
		Name:         name,
		Basename:     filepath.Base(name),
		RelativeName: relName,
		Dependencies: map[string]DependencyOpts{},
		CacheData:    map[string]any{},
		env:          env,
		resolver:     res,
		typ:          TypeFor(name),
	}
}

// Process drives the lifecycle once. A processed asset is a no-op until
// Invalidate.
func (a *Asset) Process() error {
	if a.Processed {
		return nil
	}
	start := time.Now()
	if a.ID == "" {
		a.ID = a.RelativeName
	}
	if err := a.loadIfNeeded(); err != nil {
		return err
	}
	if err := a.typ.Pretransform(a); err != nil {
		return err
	}
	if err := a.getDependencies(); err != nil {
		return err
	}
	if err := a.typ.Transform(a); err != nil {
		return err
	}
	generated, err := a.typ.Generate(a)
	if err != nil {
		return err
	}
	generated, err = a.typ.PostProcess(a, generated)
	if err != nil {
		return err
	}
	a.Generated = generated
	for _, g := range generated {
		a.Hash = hashGenerated(g)
		distPath, ignore, err := a.Output(g.Code, g.Ext, g.Map)
		if err != nil {
			return err
		}
		if ignore {
			a.debugf("ignored '%s': output '%s' is outside the out dir", a.RelativeName, distPath)
		} else {
			a.debugf("built '%s' -> '%s' in %v", a.RelativeName, distPath, time.Since(start))
		}
	}
	a.Processed = true
	return nil
}

// Invalidate clears everything derived from the contents but keeps the
// asset's identity so a rebuild reuses the same graph node.
func (a *Asset) Invalidate() {
	a.Processed = false
	a.Contents = nil
	a.AST = nil
	a.Generated = nil
	a.Hash = 0
	a.Dependencies = map[string]DependencyOpts{}
}

func (a *Asset) loadIfNeeded() error {
	if len(a.Contents) == 0 {
		contents, err := a.typ.Load(a)
		if err != nil {
			return err
		}
		a.Contents = contents
	}
	return nil
}

func (a *Asset) parseIfNeeded() error {
	if a.AST == nil {
		ast, err := a.typ.Parse(a, a.Contents)
		if err != nil {
			return err
		}
		a.AST = ast
	}
	return nil
}

func (a *Asset) getDependencies() error {
	if !a.typ.MightHaveDependencies(a) {
		return nil
	}
	if err := a.parseIfNeeded(); err != nil {
		return err
	}
	return a.typ.CollectDependencies(a)
}

// AddDependency records an edge from this asset to a request string. A
// request is unique per asset; the last write wins.
func (a *Asset) AddDependency(name string, opts DependencyOpts) {
	a.Dependencies[name] = opts
}

// Output writes one generated representation. The dist path comes from the
// asset override, the mapper, or the out-dir mirror of the relative name, in
// that order; a path escaping the out dir is reported with ignore=true and
// skipped. A source map is appended as a base64 data URL before the write.
func (a *Asset) Output(code []byte, ext string, srcmap *SourceMap) (string, bool, error) {
	distPath := a.DistPath
	if distPath == "" && a.env.Mapper != nil {
		distPath = a.env.Mapper.DistPath(a.Name, ext)
	}
	if distPath == "" {
		distPath = filepath.Join(a.env.Options.OutDir, a.RelativeName)
	}
	distPath = pathutil.ReconcileExt(distPath, ext)
	a.DistPath = distPath

	rel, err := filepath.Rel(a.env.Options.OutDir, distPath)
	if err != nil {
		rel = ".."
	}
	prettyDist := pathutil.PromoteRelative(rel)
	if strings.HasPrefix(prettyDist, "..") {
		return distPath, true, nil
	}

	if srcmap != nil {
		mapJSON, err := srcmap.Stringify(path.Base(pathutil.ToUnix(prettyDist)), "/")
		if err == nil {
			code = append(code, []byte("\r\n//# sourceMappingURL=data:application/json;charset=utf-8;base64,"+base64.StdEncoding.EncodeToString(mapJSON))...)
		}
	}

	hash := contentHash(code)
	if a.env.Cache != nil && a.env.Cache.Unchanged(distPath, hash) {
		a.debugf("skipped '%s': up to date", prettyDist)
		return distPath, false, nil
	}
	if err := ensureDir(filepath.Dir(distPath)); err != nil {
		return distPath, false, err
	}
	if err := os.WriteFile(distPath, code, 0644); err != nil {
		return distPath, false, err
	}
	if a.env.Cache != nil {
		a.env.Cache.Put(distPath, hash)
	}
	return distPath, false, nil
}

// AliasName is the rewrite target for one dependency reference: where the
// dependency really lives, where it will be emitted, and the require-style
// path from this asset's emitted file to it.
type AliasName struct {
	RealName            string
	AbsolutePath        string
	DistPath            string
	RelativeRequirePath string
}

// ResolveAliasName resolves a dependency request seen in this asset and
// pairs it with dist paths for both sides. A nil result without error means
// the dependency was elided by an alias and should be skipped.
func (a *Asset) ResolveAliasName(name, ext string) (*AliasName, error) {
	res, err := a.resolver.Resolve(name, a.Name)
	if err != nil {
		return nil, err
	}
	if res.Skipped() {
		return nil, nil
	}
	depDist := a.env.Mapper.DistPath(res.RealPath, ext)
	selfDist := a.DistPath
	if selfDist == "" {
		selfDist = a.env.Mapper.DistPath(a.Name, "")
	}
	rel, err := filepath.Rel(filepath.Dir(selfDist), depDist)
	if err != nil {
		rel = depDist
	}
	return &AliasName{
		RealName:            name,
		AbsolutePath:        res.RealPath,
		DistPath:            depDist,
		RelativeRequirePath: pathutil.PromoteRelative(rel),
	}, nil
}

// AddURLDependency records a URL reference (image src, wxs src, ...) as a
// dynamic dependency and returns the URL with its pathname rewritten to the
// dependency name. Full URLs and data URLs pass through untouched.
func (a *Asset) AddURLDependency(rawurl string) string {
	if rawurl == "" || strings.HasPrefix(rawurl, "data:") || strings.HasPrefix(rawurl, "#") {
		return rawurl
	}
	u, err := url.Parse(rawurl)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return rawurl
	}
	p, err := url.PathUnescape(u.Path)
	if err != nil || p == "" {
		return rawurl
	}

	dir := filepath.Dir(a.Name)
	var depName string
	switch p[0] {
	case '~':
		// root at the nearest package (or rootDir) and come back relative,
		// so the emitted attribute still loads on device
		depName = p
		abs := a.resolver.ResolveFilename(p, dir)
		if rel, err := filepath.Rel(dir, abs); err == nil {
			depName = pathutil.PromoteRelative(rel)
		}
	case '/':
		depName = p
		if !isChild(a.env.Options.SourceDir, a.Name) {
			// outside the source tree '/' roots at the owning package, or at
			// main's dir when main nests
			if pkg := a.getPackage(); pkg != nil {
				root := pkg.Pkgdir
				if strings.ContainsRune(pkg.Main, '/') {
					root = filepath.Join(root, filepath.Dir(pkg.Main))
				}
				abs := filepath.Join(root, p[1:])
				if rel, err := filepath.Rel(dir, abs); err == nil {
					depName = pathutil.PromoteRelative(rel)
				}
			}
		}
	default:
		abs := filepath.Join(dir, p)
		rel, err := filepath.Rel(dir, abs)
		if err != nil {
			rel = p
		}
		depName = pathutil.PromoteRelative(rel)
	}

	a.AddDependency(depName, DependencyOpts{Dynamic: true})
	u.Path = depName
	return u.String()
}

// ConfigOptions controls GetConfig.
type ConfigOptions struct {
	PackageKey string
	Load       bool
}

// GetConfig returns tool configuration for this asset: the named key of the
// nearest package.json when present (deep-cloned), else the first of
// filenames found walking upward. A discovered config file is registered as
// an included-in-parent dependency; the builder does not add it to the graph,
// so a change to it alone does not make the watcher rebuild this asset.
func (a *Asset) GetConfig(filenames []string, opts ConfigOptions) (any, error) {
	if opts.PackageKey != "" {
		if pkg := a.getPackage(); pkg != nil && pkg.Fields != nil {
			if v, ok := pkg.Fields[opts.PackageKey]; ok {
				return deepClone(v)
			}
		}
	}
	conf := findFileUp(filepath.Dir(a.Name), a.env.Options.RootDir, filenames)
	if conf == "" {
		return nil, nil
	}
	a.AddDependency(conf, DependencyOpts{IncludedInParent: true})
	if !opts.Load {
		return conf, nil
	}
	data, err := os.ReadFile(conf)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(conf, ".json") {
		var v any
		if err := json.Unmarshal(jsonc.Strip(data), &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return string(data), nil
}

func (a *Asset) getPackage() *npm.Package {
	if a.Pkg == nil {
		a.Pkg = a.resolver.Packages().FindPackage(filepath.Dir(a.Name))
	}
	return a.Pkg
}

func (a *Asset) debugf(format string, args ...any) {
	if a.env.Log != nil {
		a.env.Log.Debugf(format, args...)
	}
}

func deepClone(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var clone any
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return clone, nil
}

func findFileUp(dir, stop string, names []string) string {
	for {
		for _, name := range names {
			f := filepath.Join(dir, name)
			if isFile(f) {
				return f
			}
		}
		if dir == stop {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func contentHash(code []byte) uint64 {
	h := xxhash.New()
	h.Write(code)
	return h.Sum64()
}

func hashGenerated(g Generated) uint64 {
	h := xxhash.New()
	h.Write(g.Code)
	h.Write([]byte(g.Ext))
	return h.Sum64()
}

func ensureDir(dir string) error {
	_, err := os.Stat(dir)
	if err != nil && os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return err
}

func isFile(name string) bool {
	fi, err := os.Lstat(name)
	return err == nil && !fi.IsDir()
}

func isChild(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
