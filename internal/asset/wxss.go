package asset

import (
	"regexp"
	"strings"
)

var regCssImport = regexp.MustCompile(`@import\s+['"]([^'"\n]+)['"]`)

// WxssType handles stylesheets. @import references are collected and
// module or aliased ones rewritten to relative paths in the output tree;
// `.css -> .wxss` falls out of extension reconciliation.
type WxssType struct {
	DefaultType
}

func (WxssType) CollectDependencies(a *Asset) error {
	for _, m := range regCssImport.FindAllStringSubmatch(string(a.Contents), -1) {
		a.AddDependency(m[1], DependencyOpts{})
	}
	return nil
}

func (WxssType) Transform(a *Asset) error {
	code := string(a.Contents)
	for name := range a.Dependencies {
		if strings.HasPrefix(name, ".") {
			continue
		}
		resolved, err := a.ResolveAliasName(name, ".wxss")
		if err != nil {
			return err
		}
		if resolved == nil {
			continue
		}
		code = strings.ReplaceAll(code, `"`+name+`"`, `"`+resolved.RelativeRequirePath+`"`)
		code = strings.ReplaceAll(code, `'`+name+`'`, `'`+resolved.RelativeRequirePath+`'`)
	}
	a.Contents = []byte(code)
	return nil
}

func (WxssType) Generate(a *Asset) ([]Generated, error) {
	return []Generated{{Code: a.Contents, Ext: ".wxss"}}, nil
}

func init() {
	t := WxssType{}
	RegisterType(".wxss", t)
	RegisterType(".css", t)
	RegisterType(".less", t)
}
