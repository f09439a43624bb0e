package decoder

import (
	"fmt"
	"os"

	"artregistry/fingerprint"

	"gocv.io/x/gocv"
)

// OpenCVLoader decodes standard formats through gocv. Images are read in
// color; grayscale conversion happens downstream in the extractor so the
// color histogram keeps its channels.
type OpenCVLoader struct{}

// NewOpenCVLoader creates the gocv-backed loader.
func NewOpenCVLoader() *OpenCVLoader {
	return &OpenCVLoader{}
}

// CanLoad checks that the file exists and is readable.
func (l *OpenCVLoader) CanLoad(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load reads and decodes the file.
func (l *OpenCVLoader) Load(path string) (fingerprint.Raster, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return fingerprint.Raster{}, fmt.Errorf("failed to load image: %s", path)
	}
	defer img.Close()

	return matToRaster(img)
}

// decodeBytesOpenCV decodes an in-memory encoded image through gocv.
func decodeBytesOpenCV(buf []byte) (fingerprint.Raster, error) {
	img, err := gocv.IMDecode(buf, gocv.IMReadColor)
	if err != nil {
		return fingerprint.Raster{}, err
	}
	if img.Empty() {
		return fingerprint.Raster{}, fmt.Errorf("decoded image is empty")
	}
	defer img.Close()

	return matToRaster(img)
}

// matToRaster copies a Mat into the raster layout, reordering OpenCV's
// BGR samples into RGB.
func matToRaster(img gocv.Mat) (fingerprint.Raster, error) {
	rows, cols := img.Rows(), img.Cols()
	channels := img.Channels()

	switch channels {
	case 1:
		raster := fingerprint.Raster{
			Width:    cols,
			Height:   rows,
			Channels: 1,
			Pix:      make([]uint8, rows*cols),
		}
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				raster.Pix[y*cols+x] = img.GetUCharAt(y, x)
			}
		}
		return raster, nil

	case 3, 4:
		raster := fingerprint.Raster{
			Width:    cols,
			Height:   rows,
			Channels: 3,
			Pix:      make([]uint8, rows*cols*3),
		}
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				pixel := img.GetVecbAt(y, x)
				idx := (y*cols + x) * 3
				raster.Pix[idx] = pixel[2]
				raster.Pix[idx+1] = pixel[1]
				raster.Pix[idx+2] = pixel[0]
			}
		}
		return raster, nil

	default:
		return fingerprint.Raster{}, fmt.Errorf("unsupported channel count: %d", channels)
	}
}
