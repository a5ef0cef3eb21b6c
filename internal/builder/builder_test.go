package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moesuiga/jgb/internal/config"
)

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0644))
}

func testOptions(t *testing.T, root string, entries ...string) *config.Options {
	t.Helper()
	o := &config.Options{
		RootDir:    root,
		Extensions: []string{".js", ".json", ".wxml", ".wxss"},
		EntryFiles: entries,
	}
	require.NoError(t, o.Normalize())
	return o
}

func TestBuildMiniProject(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")

	writeFile(t, filepath.Join(root, "package.json"), `{"name": "demo", "dependencies": {"lodash": "^1.0.0"}}`)
	writeFile(t, filepath.Join(root, "node_modules/lodash/package.json"), `{"name": "lodash", "version": "1.2.3", "main": "index.js"}`)
	writeFile(t, filepath.Join(root, "node_modules/lodash/index.js"), "module.exports = {};\n")

	writeFile(t, filepath.Join(src, "app.js"), "var _ = require('lodash');\nrequire('./util');\n")
	writeFile(t, filepath.Join(src, "util.js"), "module.exports = 1;\n")
	writeFile(t, filepath.Join(src, "app.json"), `{"pages": ["pages/index/index"]}`)
	writeFile(t, filepath.Join(src, "app.wxss"), "@import \"./common.wxss\";\n")
	writeFile(t, filepath.Join(src, "common.wxss"), "page { color: red; }\n")
	writeFile(t, filepath.Join(src, "pages/index/index.js"), "Page({});\n")
	writeFile(t, filepath.Join(src, "pages/index/index.json"), `{"usingComponents": {"nav": "/components/nav/index", "navbar": "navbar"}}`)
	writeFile(t, filepath.Join(src, "pages/index/index.wxml"), `<image src="img/logo.png"/>`)
	writeFile(t, filepath.Join(src, "pages/index/img/logo.png"), "PNG")
	writeFile(t, filepath.Join(src, "components/nav/index.js"), "Component({});\n")

	// a published component package: the manifest, markup and style siblings
	// ride along with the resolved script
	writeFile(t, filepath.Join(root, "node_modules/navbar/package.json"), `{"name": "navbar", "version": "1.0.0", "main": "index.js"}`)
	writeFile(t, filepath.Join(root, "node_modules/navbar/index.js"), "Component({});\n")
	writeFile(t, filepath.Join(root, "node_modules/navbar/index.json"), `{"component": true}`)
	writeFile(t, filepath.Join(root, "node_modules/navbar/index.wxml"), `<image src="/img/nav.png"/><image src="~/img/nav2.png"/>`)
	writeFile(t, filepath.Join(root, "node_modules/navbar/img/nav.png"), "PNG")
	writeFile(t, filepath.Join(root, "node_modules/navbar/img/nav2.png"), "PNG")

	opts := testOptions(t, root, "app.js", "app.json", "app.wxss")
	b, err := New(opts, nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Build(context.Background()))

	for _, out := range []string{
		"app.js",
		"util.js",
		"app.json",
		"app.wxss",
		"common.wxss",
		"npm/lodash/index.js",
		"pages/index/index.js",
		"pages/index/index.json",
		"pages/index/index.wxml",
		"pages/index/img/logo.png",
		"components/nav/index.js",
		"npm/navbar/index.js",
		"npm/navbar/index.json",
		"npm/navbar/index.wxml",
		"npm/navbar/img/nav.png",
		"npm/navbar/img/nav2.png",
	} {
		_, err := os.Stat(filepath.Join(opts.OutDir, out))
		require.NoError(t, err, "missing output %s", out)
	}

	appJS, err := os.ReadFile(filepath.Join(opts.OutDir, "app.js"))
	require.NoError(t, err)
	require.Contains(t, string(appJS), `require("./npm/lodash/index.js")`)

	wxml, err := os.ReadFile(filepath.Join(opts.OutDir, "pages/index/index.wxml"))
	require.NoError(t, err)
	require.Contains(t, string(wxml), `src="./img/logo.png"`)

	// the emitted page manifest carries dist-relative component paths; the
	// device runtime resolves neither node_modules nor source-rooted requests
	pageJSON, err := os.ReadFile(filepath.Join(opts.OutDir, "pages/index/index.json"))
	require.NoError(t, err)
	require.Contains(t, string(pageJSON), `"../../components/nav/index"`)
	require.Contains(t, string(pageJSON), `"../../npm/navbar/index"`)
	require.NotContains(t, string(pageJSON), `:"navbar"`)
	require.NotContains(t, string(pageJSON), `"/components/nav/index"`)

	// package-rooted src references come out relative to the emitted package
	navWxml, err := os.ReadFile(filepath.Join(opts.OutDir, "npm/navbar/index.wxml"))
	require.NoError(t, err)
	require.Contains(t, string(navWxml), `src="./img/nav.png"`)
	require.Contains(t, string(navWxml), `src="./img/nav2.png"`)
}

func TestBuildCyclicRequiresTerminates(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "a.js"), "require('./b');\n")
	writeFile(t, filepath.Join(src, "b.js"), "require('./a');\n")

	opts := testOptions(t, root, "a.js")
	b, err := New(opts, nil)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Build(context.Background()))
	require.Equal(t, 2, b.AssetCount())
}

func TestInvalidateAndRebuild(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	util := filepath.Join(src, "util.js")
	writeFile(t, filepath.Join(src, "app.js"), "require('./util');\n")
	writeFile(t, util, "module.exports = 1;\n")

	opts := testOptions(t, root, "app.js")
	b, err := New(opts, nil)
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Build(context.Background()))

	out := filepath.Join(opts.OutDir, "util.js")
	first, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(first), "1")

	writeFile(t, util, "module.exports = 2;\n")
	require.True(t, b.Invalidate(util))
	require.NoError(t, b.Rebuild(context.Background()))

	second, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(second), "2")
}

func TestBuildWithCacheSkipsSecondWrite(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "app.js"), "module.exports = 1;\n")

	opts := testOptions(t, root, "app.js")
	opts.Cache = true
	b, err := New(opts, nil)
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))
	require.NoError(t, b.Close())

	// tamper with the output; an unchanged second build must not rewrite it
	out := filepath.Join(opts.OutDir, "app.js")
	require.NoError(t, os.WriteFile(out, []byte("tampered"), 0644))

	b2, err := New(opts, nil)
	require.NoError(t, err)
	defer b2.Close()
	require.NoError(t, b2.Build(context.Background()))

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "tampered", string(got))
}

func TestModuleNotFoundFailsBuild(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeFile(t, filepath.Join(src, "app.js"), "require('missing-pkg');\n")

	opts := testOptions(t, root, "app.js")
	b, err := New(opts, nil)
	require.NoError(t, err)
	defer b.Close()

	require.Error(t, b.Build(context.Background()))
}
