package builder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	logx "github.com/ije/gox/log"
	"golang.org/x/sync/errgroup"

	"github.com/moesuiga/jgb/internal/asset"
	"github.com/moesuiga/jgb/internal/cachedb"
	"github.com/moesuiga/jgb/internal/config"
	"github.com/moesuiga/jgb/internal/dist"
	"github.com/moesuiga/jgb/internal/npm"
	"github.com/moesuiga/jgb/internal/pathutil"
	"github.com/moesuiga/jgb/internal/resolver"
)

// Builder owns the asset graph and drives processing across a bounded
// worker pool. All workers share one Resolver and one package reader; the
// graph is keyed by absolute path, so cyclic requires converge instead of
// recursing.
type Builder struct {
	opts *config.Options
	log  *logx.Logger

	pkgs     *npm.Reader
	resolver *resolver.Resolver
	mapper   *dist.Mapper
	cache    *cachedb.DB
	env      *asset.Env

	mu     sync.Mutex
	assets map[string]*asset.Asset

	audited sync.Map // package name -> struct{}
}

func New(opts *config.Options, logger *logx.Logger) (*Builder, error) {
	pkgs := npm.NewReader()
	mapper, err := dist.NewMapper(opts)
	if err != nil {
		return nil, err
	}
	b := &Builder{
		opts:     opts,
		log:      logger,
		pkgs:     pkgs,
		resolver: resolver.New(opts, pkgs),
		mapper:   mapper,
		assets:   map[string]*asset.Asset{},
	}
	if opts.Cache {
		db, err := cachedb.Open(filepath.Join(opts.RootDir, ".jgb", "cache.db"))
		if err != nil {
			b.warnf("build cache disabled: %v", err)
		} else {
			b.cache = db
		}
	}
	b.env = &asset.Env{
		Options:   opts,
		Resolver:  b.resolver,
		Mapper:    mapper,
		Log:       logger,
		Cache:     b.cache,
		Callbacks: defaultCallbacks(opts),
	}
	return b, nil
}

func (b *Builder) Close() error {
	if b.cache != nil {
		return b.cache.Close()
	}
	return nil
}

// AssetCount reports the size of the current graph.
func (b *Builder) AssetCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.assets)
}

// Build seeds the graph from the configured entry files and processes it to
// a fixed point.
func (b *Builder) Build(ctx context.Context) error {
	start := time.Now()
	frontier := make([]*asset.Asset, 0, len(b.opts.EntryFiles))
	for _, entry := range b.opts.EntryFiles {
		res, err := b.resolver.Resolve(entry, "")
		if err != nil {
			return err
		}
		if a := b.addAsset(res); a != nil {
			frontier = append(frontier, a)
		}
	}
	if err := b.process(ctx, frontier); err != nil {
		return err
	}
	b.debugf("built %d assets in %v", b.AssetCount(), time.Since(start))
	return nil
}

// Rebuild re-processes every invalidated asset and follows any dependencies
// the change introduced.
func (b *Builder) Rebuild(ctx context.Context) error {
	b.mu.Lock()
	var frontier []*asset.Asset
	for _, a := range b.assets {
		if !a.Processed {
			frontier = append(frontier, a)
		}
	}
	b.mu.Unlock()
	return b.process(ctx, frontier)
}

// Invalidate marks the asset at path stale; it keeps its place in the graph.
func (b *Builder) Invalidate(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.assets[path]
	if !ok {
		return false
	}
	a.Invalidate()
	return true
}

// process runs the frontier through the worker pool, then resolves the
// dependencies each wave discovered to build the next one. Phases within an
// asset stay sequential; across assets only the wave boundary orders work.
func (b *Builder) process(ctx context.Context, frontier []*asset.Asset) error {
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(b.opts.Concurrency)
		for _, a := range frontier {
			a := a
			g.Go(func() error {
				return a.Process()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		var next []*asset.Asset
		for _, a := range frontier {
			for name, dopts := range a.Dependencies {
				if dopts.IncludedInParent {
					continue
				}
				res, err := b.resolver.Resolve(name, a.Name)
				if err != nil {
					return err
				}
				if res.Skipped() {
					continue
				}
				b.auditVersion(res)
				if child := b.addAsset(res); child != nil {
					next = append(next, child)
				}
			}
		}
		frontier = next
	}
	return nil
}

func (b *Builder) addAsset(res *resolver.Resolved) *asset.Asset {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.assets[res.RealPath]; ok {
		return nil
	}
	a := asset.New(res.RealPath, b.env)
	a.Pkg = res.Pkg
	b.assets[res.RealPath] = a
	return a
}

// auditVersion warns once per package when a resolved node_modules package
// does not satisfy the range the root manifest declares for it. The build
// never fails on a mismatch.
func (b *Builder) auditVersion(res *resolver.Resolved) {
	pkg := res.Pkg
	if pkg == nil || pkg.Name == "" || pkg.Version == "" {
		return
	}
	if !strings.Contains(pathutil.ToUnix(pkg.Pkgdir), "/node_modules/") {
		return
	}
	if _, seen := b.audited.LoadOrStore(pkg.Name, struct{}{}); seen {
		return
	}
	root := b.pkgs.FindPackage(b.opts.RootDir)
	if root == nil {
		return
	}
	want, ok := root.Dependencies[pkg.Name]
	if !ok {
		return
	}
	c, err := semver.NewConstraint(want)
	if err != nil {
		return
	}
	v, err := semver.NewVersion(pkg.Version)
	if err != nil {
		return
	}
	if !c.Check(v) {
		b.warnf("'%s@%s' does not satisfy the declared range '%s'", pkg.Name, pkg.Version, want)
	}
}

// defaultCallbacks seeds the page tree from app.json: every page path pulls
// in its sibling script/manifest/markup/style files that exist on disk.
func defaultCallbacks(opts *config.Options) *asset.Callbacks {
	collect := func(ctx *asset.CollectContext, prefix string, v any) {
		pages, ok := v.([]any)
		if !ok {
			return
		}
		for _, p := range pages {
			s, ok := p.(string)
			if !ok || s == "" {
				continue
			}
			base := filepath.Join(opts.SourceDir, prefix, s)
			for _, ext := range opts.Extensions {
				f := base + ext
				if fi, err := os.Lstat(f); err == nil && !fi.IsDir() {
					ctx.Dependences.Add(f)
				}
			}
		}
	}
	return &asset.Callbacks{
		CollectAppJSON: func(ctx *asset.CollectContext) {
			collect(ctx, "", ctx.Manifest["pages"])
			if subs, ok := ctx.Manifest["subPackages"].([]any); ok {
				for _, s := range subs {
					sub, ok := s.(map[string]any)
					if !ok {
						continue
					}
					root, _ := sub["root"].(string)
					collect(ctx, root, sub["pages"])
				}
			}
		},
		// a component is four files sharing a basename; resolving the
		// usingComponents entry only reaches the script, so the manifest,
		// markup and style siblings are pulled in here
		CollectPageJSON: func(ctx *asset.CollectContext) {
			components, ok := ctx.Manifest["usingComponents"].(map[string]any)
			if !ok {
				return
			}
			for _, v := range components {
				name, ok := v.(string)
				if !ok || name == "" || strings.Contains(name, "://") {
					continue
				}
				resolved, err := ctx.Ctx.ResolveAliasName(name, "")
				if err != nil || resolved == nil {
					continue
				}
				base := strings.TrimSuffix(resolved.AbsolutePath, filepath.Ext(resolved.AbsolutePath))
				for _, ext := range opts.Extensions {
					f := base + ext
					if f == resolved.AbsolutePath {
						continue
					}
					if fi, err := os.Lstat(f); err == nil && !fi.IsDir() {
						ctx.Dependences.Add(f)
					}
				}
			}
		},
	}
}

func (b *Builder) debugf(format string, args ...any) {
	if b.log != nil {
		b.log.Debugf(format, args...)
	}
}

func (b *Builder) warnf(format string, args ...any) {
	if b.log != nil {
		b.log.Warnf(format, args...)
	}
}
