package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"time"

	logx "github.com/ije/gox/log"
	"github.com/ije/gox/term"

	"github.com/moesuiga/jgb/internal/builder"
	"github.com/moesuiga/jgb/internal/config"
)

// Build runs a single build.
func Build() {
	opts, logger := setup(os.Args[2:])
	b, err := builder.New(opts, logger)
	if err != nil {
		fmt.Println(term.Red("[error]"), err.Error())
		os.Exit(1)
	}
	defer b.Close()

	start := time.Now()
	if err := b.Build(context.Background()); err != nil {
		fmt.Println(term.Red("[error]"), err.Error())
		os.Exit(1)
	}
	fmt.Println(term.Green("✔"), fmt.Sprintf("built %d assets in %v", b.AssetCount(), time.Since(start)))
}

// setup parses command flags and loads the config file, flags winning over
// file values.
func setup(args []string) (*config.Options, *logx.Logger) {
	var (
		cfile     string
		outDir    string
		sourceMap bool
		cache     bool
		logLevel  string
	)
	fs := flag.NewFlagSet("jgb", flag.ExitOnError)
	fs.StringVar(&cfile, "config", "jgb.config.json", "the config file path")
	fs.StringVar(&outDir, "out-dir", "", "the output directory")
	fs.BoolVar(&sourceMap, "source-map", false, "emit source maps")
	fs.BoolVar(&cache, "cache", false, "skip rewriting unchanged outputs")
	fs.StringVar(&logLevel, "log-level", "", "the log level")
	fs.Parse(args)

	var opts *config.Options
	if _, err := os.Stat(cfile); err == nil {
		opts, err = config.Load(cfile)
		if err != nil {
			fmt.Println(term.Red("[error]"), err.Error())
			os.Exit(1)
		}
	} else {
		opts = &config.Options{}
		if err := opts.Normalize(); err != nil {
			fmt.Println(term.Red("[error]"), err.Error())
			os.Exit(1)
		}
	}
	if outDir != "" {
		opts.OutDir = outDir
	}
	if sourceMap {
		opts.SourceMap = true
	}
	if cache {
		opts.Cache = true
	}
	if logLevel != "" {
		opts.LogLevel = logLevel
	}
	if len(fs.Args()) > 0 {
		opts.EntryFiles = fs.Args()
	}
	if err := opts.Normalize(); err != nil {
		fmt.Println(term.Red("[error]"), err.Error())
		os.Exit(1)
	}

	logger := &logx.Logger{}
	if opts.LogDir != "" {
		fileLogger, err := logx.New(fmt.Sprintf("file:%s?buffer=32k", path.Join(opts.LogDir, "jgb.log")))
		if err == nil {
			logger = fileLogger
		}
	}
	if opts.LogLevel != "" {
		logger.SetLevelByName(opts.LogLevel)
	}
	return opts, logger
}
