package asset

import (
	"path"
	"regexp"
	"strings"
)

var regWxmlSrc = regexp.MustCompile(`<(?:import|include|image|wxs|audio|video|cover-image)\b[^>]*?\bsrc\s*=\s*['"]([^'"{}]+)['"]`)

// WxmlType handles miniprogram markup. Every src reference becomes a dynamic
// URL dependency and the attribute is rewritten to the dependency name.
// Template bindings ({{...}}) are left alone.
type WxmlType struct {
	DefaultType
}

func (WxmlType) CollectDependencies(a *Asset) error {
	code := string(a.Contents)
	for _, m := range regWxmlSrc.FindAllStringSubmatch(code, -1) {
		src := m[1]
		if rewritten := a.AddURLDependency(src); rewritten != src {
			code = strings.Replace(code, `"`+src+`"`, `"`+rewritten+`"`, 1)
			code = strings.Replace(code, `'`+src+`'`, `'`+rewritten+`'`, 1)
		}
	}
	a.Contents = []byte(code)
	return nil
}

func (WxmlType) Generate(a *Asset) ([]Generated, error) {
	return []Generated{{Code: a.Contents, Ext: path.Ext(a.Name)}}, nil
}

func init() {
	t := WxmlType{}
	RegisterType(".wxml", t)
	RegisterType(".axml", t)
	RegisterType(".swan", t)
}
