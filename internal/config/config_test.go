package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	root := t.TempDir()
	cfile := filepath.Join(root, "jgb.config.json")
	content := `{
	// miniprogram build config
	"sourceDir": "src",
	"outDir": "dist",
	"extensions": [".ts", ".js"],
	"alias": {
		"@/utils": "./src/utils",
		"@navbar": { "path": "./node_modules/miniprogram-navigation-bar", "dist": "pages/aliasComponent/" },
	},
	"entryFiles": ["app.js"],
	"cache": true,
}`
	if err := os.WriteFile(cfile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	opts, err := Load(cfile)
	if err != nil {
		t.Fatal(err)
	}
	if opts.SourceDir != filepath.Join(root, "src") {
		t.Errorf("sourceDir = %q", opts.SourceDir)
	}
	if opts.OutDir != filepath.Join(root, "dist") {
		t.Errorf("outDir = %q", opts.OutDir)
	}
	if len(opts.Alias) != 2 {
		t.Fatalf("alias = %+v", opts.Alias)
	}
	if opts.Alias[0].Name != "@/utils" || opts.Alias[0].Path != filepath.Join(root, "src/utils") {
		t.Errorf("alias[0] = %+v", opts.Alias[0])
	}
	if opts.Alias[1].Dist != "pages/aliasComponent/" {
		t.Errorf("alias[1] = %+v", opts.Alias[1])
	}
	if !opts.Cache {
		t.Error("cache flag lost")
	}
	if opts.EntryFiles[0] != filepath.Join(root, "src", "app.js") {
		t.Errorf("entryFiles[0] = %q", opts.EntryFiles[0])
	}
	if opts.Target != "browser" {
		t.Errorf("default target = %q", opts.Target)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	o := &Options{RootDir: t.TempDir()}
	if err := o.Normalize(); err != nil {
		t.Fatal(err)
	}
	if len(o.Extensions) == 0 || o.Concurrency <= 0 {
		t.Errorf("defaults not applied: %+v", o)
	}
	if !filepath.IsAbs(o.SourceDir) || !filepath.IsAbs(o.OutDir) {
		t.Errorf("paths not absolute: %+v", o)
	}
}
