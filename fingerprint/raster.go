package fingerprint

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ErrInvalidRaster is returned when pixel data is absent or its dimensions
// do not match the sample buffer.
var ErrInvalidRaster = errors.New("invalid raster")

// Raster is a decoded image: row-major, channel-interleaved 8-bit samples.
// Channels is 1 (grayscale), 3 (RGB) or 4 (RGBA, alpha ignored).
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// Validate checks that the raster dimensions are consistent with the
// sample buffer.
func (r Raster) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidRaster, r.Width, r.Height)
	}
	if r.Channels != 1 && r.Channels != 3 && r.Channels != 4 {
		return fmt.Errorf("%w: unsupported channel count %d", ErrInvalidRaster, r.Channels)
	}
	if len(r.Pix) != r.Width*r.Height*r.Channels {
		return fmt.Errorf("%w: %d samples for %dx%dx%d", ErrInvalidRaster, len(r.Pix), r.Width, r.Height, r.Channels)
	}
	return nil
}

// luminanceAt returns the luminance of the pixel at (x, y) using the
// Rec. 601 weights. For single-channel rasters the sample is returned as-is.
func (r Raster) luminanceAt(x, y int) float64 {
	idx := (y*r.Width + x) * r.Channels
	if r.Channels == 1 {
		return float64(r.Pix[idx])
	}
	red := float64(r.Pix[idx])
	green := float64(r.Pix[idx+1])
	blue := float64(r.Pix[idx+2])
	return 0.299*red + 0.587*green + 0.114*blue
}

// channelAt returns the sample for a color channel (0=R, 1=G, 2=B) at
// (x, y). Grayscale rasters report the single sample for every channel.
func (r Raster) channelAt(x, y, channel int) uint8 {
	idx := (y*r.Width + x) * r.Channels
	if r.Channels == 1 {
		return r.Pix[idx]
	}
	return r.Pix[idx+channel]
}

// grayImage converts the raster to a grayscale stdlib image so it can be
// resampled with x/image scalers.
func (r Raster) grayImage() *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			lum := r.luminanceAt(x, y)
			if lum > 255 {
				lum = 255
			}
			gray.SetGray(x, y, color.Gray{Y: uint8(lum + 0.5)})
		}
	}
	return gray
}

// scaleGray downsamples a grayscale image to the given grid size using
// bilinear interpolation. The scaler is deterministic, which keeps the
// extracted fingerprints reproducible for identical pixel input.
func scaleGray(src *image.Gray, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
