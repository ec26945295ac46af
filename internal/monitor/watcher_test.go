package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ralt/pkgcatalog/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherStatusReplace(t *testing.T) {
	dir := t.TempDir()
	infoDir := filepath.Join(dir, "info")
	statusFile := filepath.Join(dir, "dpkg", "status")
	require.NoError(t, os.MkdirAll(infoDir, 0755))
	writeFile(t, statusFile, statusOf("a"))

	w, err := NewWatcher(New(infoDir, statusFile), 20*time.Millisecond, time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// dpkg writes status-new and renames it over status
	tmp := statusFile + "-new"
	writeFile(t, tmp, statusOf("a", "b"))
	require.NoError(t, os.Rename(tmp, statusFile))

	select {
	case ev := <-w.Events:
		assert.Equal(t, models.PackageEvent{Kind: models.PackageInstalled, Name: "b"}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for installed event")
	}
}

func TestWatcherStopClosesEvents(t *testing.T) {
	dir := t.TempDir()
	statusFile := filepath.Join(dir, "status")
	writeFile(t, statusFile, "")

	w, err := NewWatcher(New(dir, statusFile), 0, 0)
	require.NoError(t, err)
	require.NoError(t, w.Start())

	w.Stop()
	w.Stop()

	_, ok := <-w.Events
	assert.False(t, ok)
}

func TestWatcherListReplacedByRename(t *testing.T) {
	dir := t.TempDir()
	infoDir := filepath.Join(dir, "info")
	statusFile := filepath.Join(dir, "status")
	list := filepath.Join(infoDir, "foo.list")
	writeFile(t, statusFile, statusOf("foo"))
	writeFile(t, list, "/usr/bin/foo\n")

	w, err := NewWatcher(New(infoDir, statusFile), 20*time.Millisecond, time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	tmp := list + "-new"
	writeFile(t, tmp, "/usr/bin/foo\n/usr/share/doc/foo\n")
	require.NoError(t, os.Rename(tmp, list))

	select {
	case ev := <-w.Events:
		assert.Equal(t, models.PackageEvent{Kind: models.PackageUpdated, Name: "foo"}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for updated event")
	}
}

func TestWatcherNewListIsNotAnUpdate(t *testing.T) {
	dir := t.TempDir()
	infoDir := filepath.Join(dir, "info")
	statusFile := filepath.Join(dir, "status")
	require.NoError(t, os.MkdirAll(infoDir, 0755))
	writeFile(t, statusFile, statusOf("foo"))

	w, err := NewWatcher(New(infoDir, statusFile), 20*time.Millisecond, time.Hour)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	// Installing bar creates its list, then dpkg rewrites the status
	writeFile(t, filepath.Join(infoDir, "bar.list"), "/usr/bin/bar\n")
	tmp := statusFile + "-new"
	writeFile(t, tmp, statusOf("foo", "bar"))
	require.NoError(t, os.Rename(tmp, statusFile))

	select {
	case ev := <-w.Events:
		assert.Equal(t, models.PackageEvent{Kind: models.PackageInstalled, Name: "bar"}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for installed event")
	}
}
