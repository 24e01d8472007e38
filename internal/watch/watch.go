// Package watch rescans source files as they change and publishes the
// results as diagnostics.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/nhd2106/mongo-safe/internal/diagnostics"
	"github.com/nhd2106/mongo-safe/internal/engine"
	"github.com/nhd2106/mongo-safe/internal/rules"
	"github.com/nhd2106/mongo-safe/internal/sources"
)

const DefaultDebounce = 200 * time.Millisecond

// Update is emitted after every publish or clear.
type Update struct {
	Source   string
	Version  int
	Findings int
	Removed  bool
}

type Watcher struct {
	Root       string
	Walker     *sources.Walker // nil = sources.NewWalker()
	Rules      []*rules.Rule   // nil = all built-in rules
	Collection *diagnostics.Collection
	Debounce   time.Duration
	Logger     *zap.Logger
	// Updates, when set, receives every Update. Sends block.
	Updates chan<- Update

	mu       sync.Mutex
	versions map[string]int
}

func (w *Watcher) init() {
	if w.Walker == nil {
		w.Walker = sources.NewWalker()
	}
	if w.Rules == nil {
		w.Rules = rules.Builtin().All()
	}
	if w.Collection == nil {
		w.Collection = diagnostics.NewCollection("mongo-safe")
	}
	if w.Debounce <= 0 {
		w.Debounce = DefaultDebounce
	}
	if w.Logger == nil {
		w.Logger = zap.NewNop()
	}
	if w.versions == nil {
		w.versions = map[string]int{}
	}
}

// ScanAll publishes every matching file under Root.
func (w *Watcher) ScanAll() error {
	w.init()
	docs, warnings, err := w.Walker.Walk(w.Root)
	if err != nil {
		return err
	}
	for _, msg := range warnings {
		w.Logger.Warn("source skipped", zap.String("reason", msg))
	}
	for _, d := range docs {
		w.publish(d)
	}
	return nil
}

// Rescan re-reads one file and republishes it with the next version. A
// file that is gone is cleared from the collection.
func (w *Watcher) Rescan(p string) {
	w.init()
	id := filepath.ToSlash(p)
	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		w.Collection.Clear(id)
		w.mu.Lock()
		delete(w.versions, id)
		w.mu.Unlock()
		w.Logger.Debug("source removed", zap.String("source", id))
		w.emit(Update{Source: id, Removed: true})
		return
	}
	docs, warnings, err := w.Walker.Walk(p)
	if err != nil {
		w.Logger.Warn("rescan failed", zap.String("source", id), zap.Error(err))
		return
	}
	for _, msg := range warnings {
		w.Logger.Warn("source skipped", zap.String("reason", msg))
	}
	for _, d := range docs {
		w.publish(d)
	}
}

func (w *Watcher) publish(d sources.Document) {
	w.mu.Lock()
	w.versions[d.Path]++
	v := w.versions[d.Path]
	w.mu.Unlock()

	found := engine.Scan(d.Text, w.Rules, d.Path)
	if !w.Collection.Publish(d.Path, v, d.Text, found) {
		w.Logger.Debug("stale publish dropped", zap.String("source", d.Path), zap.Int("version", v))
		return
	}
	w.Logger.Info("diagnostics published",
		zap.String("source", d.Path),
		zap.Int("version", v),
		zap.Int("findings", len(found)),
	)
	w.emit(Update{Source: d.Path, Version: v, Findings: len(found)})
}

func (w *Watcher) emit(u Update) {
	if w.Updates != nil {
		w.Updates <- u
	}
}

// Run scans everything once, then watches Root until ctx is done.
// Bursts of events on the same file within Debounce collapse into one
// rescan.
func (w *Watcher) Run(ctx context.Context) error {
	w.init()
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	info, err := os.Stat(w.Root)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if info.IsDir() {
		err = w.addTree(fw, w.Root, nil)
	} else {
		err = fw.Add(filepath.Dir(w.Root))
	}
	if err != nil {
		return err
	}
	if err := w.ScanAll(); err != nil {
		return err
	}

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev, pending)
			if len(pending) > 0 {
				timer.Reset(w.Debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("watch error", zap.Error(err))
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			for _, p := range paths {
				w.Rescan(p)
			}
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event, pending map[string]struct{}) {
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			// files may land before the new directory is watched
			err := w.addTree(fw, ev.Name, func(p string) {
				if rel, err := filepath.Rel(w.Root, p); err == nil && w.Walker.Wants(rel) {
					pending[p] = struct{}{}
				}
			})
			if err != nil {
				w.Logger.Warn("watch dir", zap.String("dir", ev.Name), zap.Error(err))
			}
			return
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if fi, err := os.Stat(w.Root); err == nil && !fi.IsDir() {
		if filepath.Clean(ev.Name) != filepath.Clean(w.Root) {
			return
		}
	} else if rel, err := filepath.Rel(w.Root, ev.Name); err != nil || !w.Walker.Wants(rel) {
		return
	}
	pending[ev.Name] = struct{}{}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string, onFile func(string)) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if onFile != nil {
				onFile(p)
			}
			return nil
		}
		if p != root && w.Walker.Excludes(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}
