package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ije/gox/term"

	"github.com/moesuiga/jgb/internal/builder"
)

// Watch builds once, then watches the source tree and rebuilds invalidated
// assets on change. node_modules and the output dir are never watched.
func Watch() {
	opts, logger := setup(os.Args[2:])
	b, err := builder.New(opts, logger)
	if err != nil {
		fmt.Println(term.Red("[error]"), err.Error())
		os.Exit(1)
	}
	defer b.Close()

	if err := b.Build(context.Background()); err != nil {
		fmt.Println(term.Red("[error]"), err.Error())
	} else {
		fmt.Println(term.Green("✔"), fmt.Sprintf("built %d assets", b.AssetCount()))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Println(term.Red("[error]"), err.Error())
		os.Exit(1)
	}
	defer watcher.Close()

	watchDirs(watcher, opts.SourceDir, opts.OutDir)
	fmt.Println(term.Dim("watching " + opts.SourceDir + " ..."))

	dirty := map[string]struct{}{}
	flush := time.NewTimer(time.Hour)
	flush.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if strings.Contains(ev.Name, "node_modules") {
				continue
			}
			if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
				watchDirs(watcher, ev.Name, opts.OutDir)
				continue
			}
			dirty[ev.Name] = struct{}{}
			flush.Reset(100 * time.Millisecond)
		case <-flush.C:
			changed := 0
			for name := range dirty {
				if b.Invalidate(name) {
					changed++
				}
			}
			dirty = map[string]struct{}{}
			if changed == 0 {
				continue
			}
			start := time.Now()
			if err := b.Rebuild(context.Background()); err != nil {
				fmt.Println(term.Red("[error]"), err.Error())
				continue
			}
			fmt.Println(term.Green("✔"), fmt.Sprintf("rebuilt %d assets in %v", changed, time.Since(start)))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fmt.Println(term.Red("[watch]"), err.Error())
		case <-sig:
			return
		}
	}
}

func watchDirs(watcher *fsnotify.Watcher, dir, outDir string) {
	filepath.Walk(dir, func(p string, fi os.FileInfo, err error) error {
		if err != nil || !fi.IsDir() {
			return nil
		}
		base := filepath.Base(p)
		if base == "node_modules" || base == ".git" || p == outDir {
			return filepath.SkipDir
		}
		watcher.Add(p)
		return nil
	})
}
