package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/goccy/go-json"

	"github.com/moesuiga/jgb/internal/jsonc"
	"github.com/moesuiga/jgb/internal/npm"
	"github.com/moesuiga/jgb/internal/pathutil"
)

// AliasEntry is one normalized row of the alias table. Order is significant:
// both alias substitution and dist-path mapping scan entries in declaration
// order and stop at the first match.
type AliasEntry struct {
	Name string
	Path string
	Dist string
}

// Options is the build configuration.
type Options struct {
	SourceDir   string       `json:"sourceDir"`
	RootDir     string       `json:"rootDir"`
	OutDir      string       `json:"outDir"`
	Extensions  []string     `json:"extensions"`
	Alias       []AliasEntry `json:"-"`
	Target      string       `json:"target"`
	EntryFiles  []string     `json:"entryFiles"`
	Cache       bool         `json:"cache"`
	SourceMap   bool         `json:"sourceMap"`
	Concurrency int          `json:"concurrency"`
	LogLevel    string       `json:"logLevel"`
	LogDir      string       `json:"logDir"`
}

type rawOptions struct {
	Options
	Alias npm.JSONObject `json:"alias"`
}

// Load reads a JSONC config file and returns normalized options.
func Load(cfile string) (*Options, error) {
	data, err := os.ReadFile(cfile)
	if err != nil {
		return nil, err
	}
	var raw rawOptions
	if err := json.Unmarshal(jsonc.Strip(data), &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %v", cfile, err)
	}
	opts := raw.Options
	for _, key := range raw.Alias.Keys() {
		v, _ := raw.Alias.Get(key)
		alias := pathutil.NormalizeAlias(v)
		opts.Alias = append(opts.Alias, AliasEntry{Name: key, Path: alias.Path, Dist: alias.Dist})
	}
	if opts.RootDir == "" {
		opts.RootDir = filepath.Dir(cfile)
	}
	if err := opts.Normalize(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Normalize fills defaults and makes every configured path absolute. Alias
// paths resolve against the root dir, entry files against the source dir.
func (o *Options) Normalize() error {
	if o.RootDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		o.RootDir = cwd
	}
	var err error
	if o.RootDir, err = filepath.Abs(o.RootDir); err != nil {
		return err
	}
	if o.SourceDir == "" {
		o.SourceDir = "src"
	}
	if !filepath.IsAbs(o.SourceDir) {
		o.SourceDir = filepath.Join(o.RootDir, o.SourceDir)
	}
	if o.OutDir == "" {
		o.OutDir = "dist"
	}
	if !filepath.IsAbs(o.OutDir) {
		o.OutDir = filepath.Join(o.RootDir, o.OutDir)
	}
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".js", ".ts", ".json", ".wxml", ".wxss"}
	}
	if o.Target == "" {
		o.Target = "browser"
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.NumCPU()
	}
	for i, a := range o.Alias {
		if a.Path != "" && !filepath.IsAbs(a.Path) {
			o.Alias[i].Path = filepath.Join(o.RootDir, a.Path)
		}
	}
	for i, f := range o.EntryFiles {
		if !filepath.IsAbs(f) {
			o.EntryFiles[i] = filepath.Join(o.SourceDir, f)
		}
	}
	return nil
}
