package asset

import (
	"os"
	"path"
	"sync"
)

// Type is the capability surface of one asset kind. DefaultType provides
// empty defaults so kinds override only the phases they care about.
type Type interface {
	MightHaveDependencies(a *Asset) bool
	Load(a *Asset) ([]byte, error)
	Pretransform(a *Asset) error
	Parse(a *Asset, code []byte) (any, error)
	CollectDependencies(a *Asset) error
	Transform(a *Asset) error
	Generate(a *Asset) ([]Generated, error)
	PostProcess(a *Asset, generated []Generated) ([]Generated, error)
	ShouldInvalidate(a *Asset) bool
}

type DefaultType struct{}

func (DefaultType) MightHaveDependencies(*Asset) bool { return true }

func (DefaultType) Load(a *Asset) ([]byte, error) {
	return os.ReadFile(a.Name)
}

func (DefaultType) Pretransform(*Asset) error { return nil }

func (DefaultType) Parse(*Asset, []byte) (any, error) { return nil, nil }

func (DefaultType) CollectDependencies(*Asset) error { return nil }

func (DefaultType) Transform(*Asset) error { return nil }

func (DefaultType) Generate(*Asset) ([]Generated, error) {
	return []Generated{{Code: nil, Ext: ""}}, nil
}

func (DefaultType) PostProcess(_ *Asset, generated []Generated) ([]Generated, error) {
	return generated, nil
}

func (DefaultType) ShouldInvalidate(*Asset) bool { return false }

// RawType copies a file through unchanged: images, fonts, wxs the build has
// no opinion about.
type RawType struct {
	DefaultType
}

func (RawType) MightHaveDependencies(*Asset) bool { return false }

func (RawType) Generate(a *Asset) ([]Generated, error) {
	return []Generated{{Code: a.Contents, Ext: path.Ext(a.Name)}}, nil
}

var assetTypes sync.Map // extension -> Type

// RegisterType binds an extension (with leading dot) to an asset kind.
// Unknown extensions fall back to RawType.
func RegisterType(ext string, t Type) {
	assetTypes.Store(ext, t)
}

func TypeFor(name string) Type {
	if v, ok := assetTypes.Load(path.Ext(name)); ok {
		return v.(Type)
	}
	return RawType{}
}
