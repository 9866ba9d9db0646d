package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"kiln/internal/deps"
	"kiln/internal/diag"
	"kiln/internal/source"
	"kiln/internal/transform"
)

func sampleEntry() *Entry {
	return &Entry{
		Code: []byte(`module.exports = require("./a");`),
		Deps: []deps.Dependency{{
			Specifier: "./a",
			Kind:      deps.Static,
			Span:      source.Span{Start: 25, End: 30},
		}},
		Assets:   []transform.Asset{{Name: "static/logo.png", Content: []byte{1, 2, 3}}},
		Warnings: []diag.Diagnostic{diag.New(diag.SevWarning, diag.LntNoConsole, "/p/a.js", source.Span{Start: 1, End: 2}, "console")},
	}
}

func TestDiskRoundTrip(t *testing.T) {
	disk, err := OpenDisk(t.TempDir())
	require.NoError(t, err)
	defer disk.Close()

	key := source.Sum([]byte("key"))
	_, ok, err := disk.Get(key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, disk.Put(key, sampleEntry()))
	got, ok, err := disk.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sampleEntry().Code, got.Code)
	require.Equal(t, sampleEntry().Deps, got.Deps)
	require.Equal(t, sampleEntry().Assets, got.Assets)
	require.Equal(t, diag.LntNoConsole, got.Warnings[0].Code)
}

func TestDiskSchemaMismatchIsMiss(t *testing.T) {
	dir := t.TempDir()
	disk, err := OpenDisk(dir)
	require.NoError(t, err)
	defer disk.Close()

	key := source.Sum([]byte("stale"))
	require.NoError(t, disk.Put(key, sampleEntry()))

	// corrupt the file: the decoder must report, not panic
	require.NoError(t, os.WriteFile(disk.pathFor(key), []byte("garbage"), 0o644))
	_, ok, err := disk.Get(key)
	require.Error(t, err)
	require.False(t, ok)
}

func TestDiskDropAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "kiln")
	disk, err := OpenDisk(dir)
	require.NoError(t, err)
	defer disk.Close()

	key := source.Sum([]byte("k"))
	require.NoError(t, disk.Put(key, sampleEntry()))
	require.NoError(t, disk.DropAll())
	_, ok, err := disk.Get(key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorePromotesDiskHits(t *testing.T) {
	disk, err := OpenDisk(t.TempDir())
	require.NoError(t, err)
	defer disk.Close()
	key := source.Sum([]byte("promote"))
	require.NoError(t, disk.Put(key, sampleEntry()))

	mem, err := NewMemory(8)
	require.NoError(t, err)
	store := NewStore(context.Background(), mem, disk)

	got, ok := store.Get(key)
	require.True(t, ok)
	require.Equal(t, sampleEntry().Code, got.Code)
	require.Equal(t, 1, mem.Len())

	other := source.Sum([]byte("other"))
	store.Put(other, sampleEntry())
	_, ok, err = disk.Get(other)
	require.NoError(t, err)
	require.True(t, ok)
}
