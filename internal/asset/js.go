package asset

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var (
	regImportFrom = regexp.MustCompile(`(?m)^\s*import\s+(?:[\w$*{},\s]+?\s+from\s+)?['"]([^'"\n]+)['"]`)
	regRequire    = regexp.MustCompile(`require\(\s*['"]([^'"\n]+)['"]\s*\)`)
	regDynImport  = regexp.MustCompile(`import\(\s*['"]([^'"\n]+)['"]\s*\)`)
	regExportFrom = regexp.MustCompile(`(?m)^\s*export\s+(?:\*|{[^}]*})\s+from\s+['"]([^'"\n]+)['"]`)
)

// JSType handles scripts. Dependencies come from a lexical scan of import,
// export-from, require and dynamic import forms; generation runs the code
// through esbuild targeting ES2015, which also covers the `.es6 -> .js` and
// `.ts -> .js` rewrites.
type JSType struct {
	DefaultType
}

func (JSType) CollectDependencies(a *Asset) error {
	code := string(a.Contents)
	for _, reg := range []*regexp.Regexp{regImportFrom, regExportFrom, regRequire} {
		for _, m := range reg.FindAllStringSubmatch(code, -1) {
			a.AddDependency(m[1], DependencyOpts{})
		}
	}
	for _, m := range regDynImport.FindAllStringSubmatch(code, -1) {
		a.AddDependency(m[1], DependencyOpts{Dynamic: true})
	}
	return nil
}

// Transform rewrites module and aliased requests to require-style relative
// paths between the emitted files, so the output tree is self-contained.
func (JSType) Transform(a *Asset) error {
	code := string(a.Contents)
	for name, opts := range a.Dependencies {
		if opts.IncludedInParent || strings.HasPrefix(name, ".") {
			continue
		}
		resolved, err := a.ResolveAliasName(name, ".js")
		if err != nil {
			return err
		}
		if resolved == nil || resolved.RelativeRequirePath == "" {
			continue
		}
		code = strings.ReplaceAll(code, `"`+name+`"`, `"`+resolved.RelativeRequirePath+`"`)
		code = strings.ReplaceAll(code, `'`+name+`'`, `'`+resolved.RelativeRequirePath+`'`)
	}
	a.Contents = []byte(code)
	return nil
}

func (JSType) Generate(a *Asset) ([]Generated, error) {
	loader := api.LoaderJS
	if ext := path.Ext(a.Name); ext == ".ts" || ext == ".mts" {
		loader = api.LoaderTS
	}
	opts := api.TransformOptions{
		Loader:     loader,
		Target:     api.ES2015,
		Sourcefile: a.Basename,
	}
	if a.env.Options.SourceMap {
		opts.Sourcemap = api.SourceMapExternal
	}
	result := api.Transform(string(a.Contents), opts)
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("transform '%s': %s", a.RelativeName, result.Errors[0].Text)
	}
	g := Generated{Code: result.Code, Ext: ".js"}
	if len(result.Map) > 0 {
		if m, err := ParseSourceMap(result.Map); err == nil {
			g.Map = m
		}
	}
	return []Generated{g}, nil
}

func init() {
	t := JSType{}
	for _, ext := range []string{".js", ".mjs", ".es6", ".ts"} {
		RegisterType(ext, t)
	}
}
