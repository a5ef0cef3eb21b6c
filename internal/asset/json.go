package asset

import (
	"fmt"
	"path"
	"strings"

	"github.com/goccy/go-json"
	"github.com/ije/gox/set"

	"github.com/moesuiga/jgb/internal/jsonc"
)

// JSONType handles manifests. Page and component json pull their
// usingComponents in; app.json additionally runs the app-manifest callback
// so the page tree seeds the graph.
type JSONType struct {
	DefaultType
}

func (JSONType) Parse(a *Asset, code []byte) (any, error) {
	var v any
	if err := json.Unmarshal(jsonc.Strip(code), &v); err != nil {
		return nil, fmt.Errorf("parse '%s': %v", a.RelativeName, err)
	}
	return v, nil
}

func (JSONType) CollectDependencies(a *Asset) error {
	manifest, ok := a.AST.(map[string]any)
	if !ok {
		return nil
	}

	deps := set.New[string]()
	if cb := a.env.Callbacks; cb != nil {
		ctx := &CollectContext{Dependences: deps, Manifest: manifest, Ctx: a}
		if a.Basename == "app.json" {
			if cb.CollectAppJSON != nil {
				cb.CollectAppJSON(ctx)
			}
		} else if cb.CollectPageJSON != nil {
			cb.CollectPageJSON(ctx)
		}
	}
	for _, p := range deps.Values() {
		a.AddDependency(p, DependencyOpts{})
	}

	if components, ok := manifest["usingComponents"].(map[string]any); ok {
		for _, v := range components {
			if s, ok := v.(string); ok && s != "" && !strings.Contains(s, "://") {
				a.AddDependency(s, DependencyOpts{})
			}
		}
	}
	return nil
}

// Transform overwrites every usingComponents value with the require-style
// path between the emitted manifest and the component's emitted entry, the
// same way scripts and stylesheets rewrite their own references. The device
// runtime performs no node_modules or alias resolution itself, so module and
// aliased component paths must not survive into the output. Component paths
// are extensionless on device.
func (JSONType) Transform(a *Asset) error {
	manifest, ok := a.AST.(map[string]any)
	if !ok {
		return nil
	}
	components, ok := manifest["usingComponents"].(map[string]any)
	if !ok {
		return nil
	}
	for key, v := range components {
		name, ok := v.(string)
		if !ok || name == "" || strings.Contains(name, "://") {
			continue
		}
		resolved, err := a.ResolveAliasName(name, "")
		if err != nil {
			return err
		}
		if resolved == nil {
			continue
		}
		rel := resolved.RelativeRequirePath
		components[key] = strings.TrimSuffix(rel, path.Ext(rel))
	}
	return nil
}

func (JSONType) Generate(a *Asset) ([]Generated, error) {
	if a.AST == nil {
		return []Generated{{Code: a.Contents, Ext: ".json"}}, nil
	}
	code, err := json.Marshal(a.AST)
	if err != nil {
		return nil, err
	}
	return []Generated{{Code: code, Ext: ".json"}}, nil
}

func init() {
	RegisterType(".json", JSONType{})
}
