package pathutil

import (
	"path"
	"strings"
)

// Alias is a normalized alias value. A bare string alias is an Alias with an
// empty Dist; Dist names the output-directory prefix for files reached
// through this alias.
type Alias struct {
	Path string `json:"path"`
	Dist string `json:"dist"`
}

// ToUnix replaces platform path separators with '/'. Idempotent.
func ToUnix(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// NormalizeAlias turns a raw alias value (a string, a {path,dist} object
// decoded from JSON, or an already normalized Alias) into an Alias.
func NormalizeAlias(v any) Alias {
	switch a := v.(type) {
	case Alias:
		return a
	case *Alias:
		return *a
	case string:
		return Alias{Path: a}
	case map[string]any:
		alias := Alias{}
		if s, ok := a["path"].(string); ok {
			alias.Path = s
		}
		if s, ok := a["dist"].(string); ok {
			alias.Dist = s
		}
		return alias
	}
	return Alias{}
}

// PromoteRelative prefixes p with "./" unless it is empty or already starts
// with '.' or '/', producing a require-style relative string. Separators are
// unixified.
func PromoteRelative(p string) string {
	p = ToUnix(p)
	if p == "" || strings.HasPrefix(p, ".") || strings.HasPrefix(p, "/") {
		return p
	}
	return "./" + p
}

// ReconcileExt makes p carry the extension ext: a path without an extension
// gets ext appended, a differing extension is replaced. This is the single
// site for rewrites such as `.es6 -> .js` and `.less -> .wxss`; both the
// dist-path mapper and asset output go through it.
func ReconcileExt(p string, ext string) string {
	cur := path.Ext(ToUnix(p))
	if cur == "" {
		if ext != "" {
			return p + ext
		}
		return p
	}
	if ext != "" && ext != cur {
		return strings.TrimSuffix(p, cur) + ext
	}
	return p
}
