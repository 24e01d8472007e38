package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhd2106/mongo-safe/internal/diagnostics"
)

const unsafeJS = "db.users.find({ $where: \"this.a == '\" + a + \"'\" });\n"

func write(t *testing.T, p, s string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(s), 0o644))
}

func next(t *testing.T, ch <-chan Update, match func(Update) bool) Update {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-ch:
			if match(u) {
				return u
			}
		case <-deadline:
			t.Fatal("timed out waiting for update")
			return Update{}
		}
	}
}

func TestRescan_Versions(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app.js")
	write(t, app, unsafeJS)
	write(t, filepath.Join(dir, "node_modules", "x.js"), unsafeJS)

	col := diagnostics.NewCollection("test")
	w := &Watcher{Root: dir, Collection: col}
	require.NoError(t, w.ScanAll())

	id := filepath.ToSlash(app)
	assert.Equal(t, 1, col.Version(id))
	assert.NotEmpty(t, col.Diagnostics(id))
	assert.Equal(t, []string{id}, col.Sources())

	write(t, app, "const ok = 1;\n")
	w.Rescan(app)
	assert.Equal(t, 2, col.Version(id))
	assert.Empty(t, col.Diagnostics(id))

	require.NoError(t, os.Remove(app))
	w.Rescan(app)
	assert.Equal(t, -1, col.Version(id))
}

func TestRun_PublishesOnChange(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "src", "app.js")
	write(t, app, "const ok = 1;\n")

	updates := make(chan Update, 64)
	col := diagnostics.NewCollection("test")
	w := &Watcher{Root: dir, Collection: col, Debounce: 20 * time.Millisecond, Updates: updates}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	id := filepath.ToSlash(app)
	u := next(t, updates, func(u Update) bool { return u.Source == id })
	assert.Equal(t, 1, u.Version)
	assert.Zero(t, u.Findings)

	write(t, app, unsafeJS)
	u = next(t, updates, func(u Update) bool { return u.Source == id && u.Findings > 0 })
	assert.Greater(t, u.Version, 1)
	_, ok := col.Lookup(diagnostics.Key{SourceID: id, Line: 1, RuleID: "MONGO-WHERE-INJECTION"})
	assert.True(t, ok)

	// new directories are picked up
	other := filepath.Join(dir, "lib", "db.js")
	write(t, other, unsafeJS)
	next(t, updates, func(u Update) bool { return u.Source == filepath.ToSlash(other) })

	// files outside the extension filter are ignored
	write(t, filepath.Join(dir, "src", "notes.md"), unsafeJS)

	require.NoError(t, os.Remove(app))
	next(t, updates, func(u Update) bool { return u.Source == id && u.Removed })
	assert.Nil(t, col.Diagnostics(id))
}
