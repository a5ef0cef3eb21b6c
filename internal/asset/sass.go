package asset

import (
	"bytes"
	"fmt"

	libsass "github.com/wellington/go-libsass"
)

// SassType compiles .scss/.sass to .wxss through libsass. Imports are
// inlined by the compiler, so they are recorded included-in-parent: no
// separate output is emitted for them, and a change to an imported file alone
// does not make the watcher rebuild the importing asset.
type SassType struct {
	DefaultType
}

func (SassType) CollectDependencies(a *Asset) error {
	for _, m := range regCssImport.FindAllStringSubmatch(string(a.Contents), -1) {
		a.AddDependency(m[1], DependencyOpts{IncludedInParent: true})
	}
	return nil
}

func (SassType) Generate(a *Asset) ([]Generated, error) {
	var out bytes.Buffer
	comp, err := libsass.New(&out, bytes.NewReader(a.Contents), libsass.Path(a.Name))
	if err != nil {
		return nil, fmt.Errorf("sass '%s': %v", a.RelativeName, err)
	}
	if err := comp.Run(); err != nil {
		return nil, fmt.Errorf("sass '%s': %v", a.RelativeName, err)
	}
	return []Generated{{Code: out.Bytes(), Ext: ".wxss"}}, nil
}

func init() {
	t := SassType{}
	RegisterType(".scss", t)
	RegisterType(".sass", t)
}
