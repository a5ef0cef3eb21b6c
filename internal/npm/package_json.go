package npm

import (
	"github.com/goccy/go-json"
)

// PackageJSONRaw is the wire shape of a package.json manifest. Fields that
// ecosystems ship as either a string or an object are decoded as JSONAny.
type PackageJSONRaw struct {
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Main         JSONAny        `json:"main"`
	Module       JSONAny        `json:"module"`
	Source       JSONAny        `json:"source"`
	Browser      JSONAny        `json:"browser"`
	Alias        map[string]any `json:"alias"`
	Miniprogram  string         `json:"miniprogram"`
	Dependencies map[string]any `json:"dependencies"`
}

// Package is a normalized package.json record. Records are memoized by
// absolute Pkgfile and shared by reference; they are never mutated after
// insertion into the reader cache.
type Package struct {
	Pkgfile string
	Pkgdir  string

	Name    string
	Version string
	Main    string
	Module  string
	// Source is the string form of the "source" field. It survives only when
	// the package is reached through a symlink (a linked source checkout);
	// the reader strips it otherwise.
	Source string
	// SourceAlias is the object form of the "source" field, an alias map.
	SourceAlias map[string]any
	Browser     JSONAny
	Alias       map[string]any
	Miniprogram string

	Dependencies map[string]string

	// Fields holds the full decoded manifest for config lookups by key.
	Fields map[string]any
}

// ToPackage converts the raw manifest into a Package rooted at pkgfile.
func (a *PackageJSONRaw) ToPackage(pkgfile, pkgdir string) *Package {
	var deps map[string]string
	if len(a.Dependencies) > 0 {
		deps = make(map[string]string, len(a.Dependencies))
		for k, v := range a.Dependencies {
			if s, ok := v.(string); ok && k != "" && s != "" {
				deps[k] = s
			}
		}
	}
	p := &Package{
		Pkgfile:      pkgfile,
		Pkgdir:       pkgdir,
		Name:         a.Name,
		Version:      a.Version,
		Main:         a.Main.MainString(),
		Module:       a.Module.MainString(),
		Source:       a.Source.Str,
		SourceAlias:  a.Source.Map,
		Browser:      a.Browser,
		Alias:        a.Alias,
		Miniprogram:  a.Miniprogram,
		Dependencies: deps,
	}
	return p
}

// JSONAny holds a JSON value that is either a string or an object.
type JSONAny struct {
	Str string
	Map map[string]any
	Any any
}

func (a *JSONAny) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		a.Str = s
		return nil
	}
	var m map[string]any
	if json.Unmarshal(b, &m) == nil {
		a.Map = m
		return nil
	}
	return json.Unmarshal(b, &a.Any)
}

func (a *JSONAny) MarshalJSON() ([]byte, error) {
	if a.Str != "" {
		return json.Marshal(a.Str)
	}
	if a.Map != nil {
		return json.Marshal(a.Map)
	}
	return json.Marshal(a.Any)
}

// MainString returns the string form, or the "." entry of the object form.
func (a *JSONAny) MainString() string {
	if a.Str != "" {
		return a.Str
	}
	if a.Map != nil {
		if v, ok := a.Map["."]; ok {
			if s, isStr := v.(string); isStr {
				return s
			}
		}
	}
	return ""
}
