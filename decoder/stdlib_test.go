package decoder

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeBytesStdlib(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})
	src.Set(1, 0, color.RGBA{G: 255, A: 255})
	src.Set(2, 0, color.RGBA{B: 255, A: 255})
	src.Set(0, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	raster, err := decodeBytesStdlib(encodePNG(t, src))
	require.NoError(t, err)

	assert.Equal(t, 3, raster.Width)
	assert.Equal(t, 2, raster.Height)
	assert.Equal(t, 3, raster.Channels)
	require.NoError(t, raster.Validate())

	assert.Equal(t, []uint8{255, 0, 0}, raster.Pix[0:3])
	assert.Equal(t, []uint8{0, 255, 0}, raster.Pix[3:6])
	assert.Equal(t, []uint8{0, 0, 255}, raster.Pix[6:9])
	assert.Equal(t, []uint8{10, 20, 30}, raster.Pix[9:12])
}

func TestDecodeBytesStdlibDeterministic(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 100, A: 255})
		}
	}
	encoded := encodePNG(t, src)

	first, err := decodeBytesStdlib(encoded)
	require.NoError(t, err)
	second, err := decodeBytesStdlib(encoded)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeBytesStdlibRejectsGarbage(t *testing.T) {
	_, err := decodeBytesStdlib([]byte("definitely not an image"))
	require.Error(t, err)
}

func TestRegistryExtensionTable(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.CanLoadFile("/tmp/art.png"))
	assert.True(t, r.CanLoadFile("/tmp/art.JPG"))
	assert.True(t, r.CanLoadFile("/tmp/art.gif"))
	assert.False(t, r.CanLoadFile("/tmp/art.txt"))
	assert.False(t, r.CanLoadFile("/tmp/noextension"))

	// Unregistered extensions still resolve to the default loader.
	assert.NotNil(t, r.GetLoader("/tmp/unknown.xyz"))
}
