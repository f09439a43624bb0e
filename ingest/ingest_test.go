package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artregistry/contenthash"
	"artregistry/decoder"
	"artregistry/fingerprint"
	"artregistry/registry"
)

func writePNG(t *testing.T, dir, name string, seed uint8) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x*16) + seed,
				G: uint8(y * 16),
				B: seed,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestScanAndStoreFolder(t *testing.T) {
	dir := t.TempDir()
	first := writePNG(t, dir, "first.png", 0)
	writePNG(t, dir, "second.png", 200)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644))

	store := registry.NewInMemory()
	opts := Options{FolderPath: dir, SourcePrefix: "test", Workers: 2}

	require.NoError(t, ScanAndStoreFolder(context.Background(), store, opts))

	stats, err := store.Stats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalArtworks)

	raw, err := os.ReadFile(first)
	require.NoError(t, err)
	hash, err := contenthash.Compute(raw)
	require.NoError(t, err)

	info, err := store.FindByContentHash(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, first, info.SourcePath)
	assert.Equal(t, "test", info.SourcePrefix)
	assert.Equal(t, 16, info.Width)
	assert.Equal(t, 16, info.Height)
	assert.NotEmpty(t, info.PHash)

	fp, err := fingerprint.Deserialize(info.Fingerprint)
	require.NoError(t, err)
	assert.True(t, fp.Valid())
}

func TestScanAndStoreFolderSkipsRegistered(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "art.png", 42)

	store := registry.NewInMemory()
	opts := Options{FolderPath: dir, Workers: 1}

	require.NoError(t, ScanAndStoreFolder(context.Background(), store, opts))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	hash, err := contenthash.Compute(raw)
	require.NoError(t, err)

	before, err := store.FindByContentHash(context.Background(), hash)
	require.NoError(t, err)

	// A second pass must leave the original registration untouched.
	require.NoError(t, ScanAndStoreFolder(context.Background(), store, opts))

	after, err := store.FindByContentHash(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, before.RegisteredAt, after.RegisteredAt)

	stats, err := store.Stats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalArtworks)
}

func TestProcessAndStoreArtworkUnreadable(t *testing.T) {
	store := registry.NewInMemory()
	result := processAndStoreArtwork(context.Background(), store, decoder.NewRegistry(), filepath.Join(t.TempDir(), "missing.png"), Options{})

	assert.False(t, result.Success)
	require.Error(t, result.Error)
}
