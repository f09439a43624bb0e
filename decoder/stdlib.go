package decoder

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"artregistry/fingerprint"
)

// StdlibLoader decodes with the pure-Go image codecs. It is the fallback
// when the OpenCV path cannot handle a file, and the primary loader for
// formats OpenCV skips.
type StdlibLoader struct{}

// NewStdlibLoader creates the pure-Go loader.
func NewStdlibLoader() *StdlibLoader {
	return &StdlibLoader{}
}

// CanLoad checks that the file exists and is readable.
func (l *StdlibLoader) CanLoad(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load reads and decodes the file.
func (l *StdlibLoader) Load(path string) (fingerprint.Raster, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fingerprint.Raster{}, fmt.Errorf("cannot read %s: %v", path, err)
	}
	return decodeBytesStdlib(buf)
}

// decodeBytesStdlib decodes an in-memory encoded image with the stdlib
// codecs and flattens it into the raster layout.
func decodeBytesStdlib(buf []byte) (fingerprint.Raster, error) {
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return fingerprint.Raster{}, fmt.Errorf("cannot decode image: %v", err)
	}
	return rasterFromImage(img), nil
}

// rasterFromImage flattens any stdlib image into an 8-bit RGB raster.
func rasterFromImage(img image.Image) fingerprint.Raster {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	raster := fingerprint.Raster{
		Width:    width,
		Height:   height,
		Channels: 3,
		Pix:      make([]uint8, width*height*3),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := (y*width + x) * 3
			raster.Pix[idx] = uint8(r >> 8)
			raster.Pix[idx+1] = uint8(g >> 8)
			raster.Pix[idx+2] = uint8(b >> 8)
		}
	}
	return raster
}
