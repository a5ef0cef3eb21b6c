package resolver

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/moesuiga/jgb/internal/npm"
	"github.com/moesuiga/jgb/internal/pathutil"
)

// loadAlias rewrites a canonicalized request through the alias layers: the
// global alias table first, then the aliases of the package nearest to dir,
// then the root package's. The second return is true when the request was
// elided (an alias value of false).
func (r *Resolver) loadAlias(filename, dir string) (string, bool) {
	r.rootOnce.Do(func() {
		r.rootPkg = r.pkgs.FindPackage(r.opts.RootDir)
	})
	if subst, ok := r.SubstituteAlias(filename, ""); ok {
		return subst, false
	}
	pkg := r.pkgs.FindPackage(dir)
	for _, p := range []*npm.Package{pkg, r.rootPkg} {
		if p == nil {
			continue
		}
		if alias, ok := r.packageAlias(filename, p); ok {
			return alias, alias == ""
		}
		if p == r.rootPkg {
			break
		}
	}
	return filename, false
}

// SubstituteAlias scans the global alias table in declaration order and
// substitutes the first key found inside the unixified request. Keys match
// as substrings, not prefixes. With a non-empty dir the substitution comes
// back as a require-style relative path.
func (r *Resolver) SubstituteAlias(filename, dir string) (string, bool) {
	uf := pathutil.ToUnix(filename)
	for _, a := range r.opts.Alias {
		if a.Name == "" || !strings.Contains(uf, a.Name) {
			continue
		}
		subst := strings.Replace(uf, a.Name, pathutil.ToUnix(a.Path), 1)
		if dir != "" {
			if rel, err := filepath.Rel(dir, subst); err == nil {
				return pathutil.PromoteRelative(rel), true
			}
		}
		return subst, true
	}
	return "", false
}

// resolveAliases applies whichever alias layer matches first, leaving the
// name untouched otherwise. Used by expandFile on extended names.
func (r *Resolver) resolveAliases(filename string, pkg *npm.Package) string {
	if subst, ok := r.SubstituteAlias(filename, ""); ok {
		return subst
	}
	if pkg != nil {
		if alias, ok := r.packageAlias(filename, pkg); ok {
			return alias
		}
	}
	return filename
}

// packageAlias consults a package's alias maps in order: the object form of
// "source", then "alias", then the browser field.
func (r *Resolver) packageAlias(filename string, pkg *npm.Package) (string, bool) {
	for _, aliases := range []map[string]any{pkg.SourceAlias, pkg.Alias, browserAliases(pkg, r.opts.Target)} {
		if alias, ok := r.getAlias(filename, pkg.Pkgdir, aliases); ok {
			return alias, true
		}
	}
	return "", false
}

func browserAliases(pkg *npm.Package, target string) map[string]any {
	if m, ok := npm.BrowserField(pkg, target).(map[string]any); ok {
		return m
	}
	return nil
}

// getAlias looks filename up in one alias map. Absolute names are
// relativized to the package dir first; bare names that miss are retried
// with just the module head, re-appending the tail. A value of literal
// false resolves to the empty string: the file is intentionally elided.
func (r *Resolver) getAlias(filename, pkgdir string, aliases map[string]any) (string, bool) {
	if len(aliases) == 0 {
		return "", false
	}
	if filepath.IsAbs(filename) {
		rel, err := filepath.Rel(pkgdir, filename)
		if err != nil {
			return "", false
		}
		return r.lookupAlias(aliases, pathutil.PromoteRelative(rel), pkgdir)
	}
	if alias, ok := r.lookupAlias(aliases, filename, pkgdir); ok {
		return alias, true
	}
	parts := ModuleParts(filename)
	if len(parts) > 1 {
		if alias, ok := r.lookupAlias(aliases, parts[0], pkgdir); ok {
			if alias == "" {
				return "", true
			}
			return filepath.Join(alias, path.Join(parts[1:]...)), true
		}
	}
	return "", false
}

func (r *Resolver) lookupAlias(aliases map[string]any, name, dir string) (string, bool) {
	v, ok := aliases[name]
	if !ok {
		return "", false
	}
	switch a := v.(type) {
	case string:
		return r.ResolveFilename(a, dir), true
	case bool:
		if !a {
			return "", true
		}
	}
	return "", false
}
