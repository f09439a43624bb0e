package fingerprint

import (
	"bytes"
	"image"
)

// Fixed output sizes. Every fingerprint produced by Extract has exactly
// these dimensions so any two fingerprints are directly comparable.
const (
	// HashBits is the bit length of both perceptual bit vectors.
	HashBits = 64
	// HashSize is the byte length of a packed bit vector.
	HashSize = HashBits / 8

	// pHashGrid is the side of the square luminance grid for pHash.
	pHashGrid = 8
	// dHashRows is the dHash grid height; each row holds dHashRows+1
	// samples so neighbor comparison yields dHashRows bits per row.
	dHashRows = 8

	// HistogramBuckets is the bucket count per color channel.
	HistogramBuckets = 4
	// HistogramSize is the total histogram length (3 channels).
	HistogramSize = HistogramBuckets * 3

	// BlockGrid is the side of the structural block grid.
	BlockGrid = 4
	// DescriptorSize is the structural descriptor length.
	DescriptorSize = BlockGrid * BlockGrid
)

// ContentFingerprint is an immutable perceptual identity for decoded pixel
// data. Bit-identical images yield bit-identical fingerprints; visually
// near-identical images yield small distances across every field.
type ContentFingerprint struct {
	PHash                []byte
	DHash                []byte
	ColorHistogram       []float64
	StructuralDescriptor []float64
}

// Valid reports whether the fingerprint has the fixed field sizes
// produced by Extract.
func (f ContentFingerprint) Valid() bool {
	return len(f.PHash) == HashSize &&
		len(f.DHash) == HashSize &&
		len(f.ColorHistogram) == HistogramSize &&
		len(f.StructuralDescriptor) == DescriptorSize
}

// Equal reports whether two fingerprints are field-for-field identical.
func (f ContentFingerprint) Equal(other ContentFingerprint) bool {
	if !bytes.Equal(f.PHash, other.PHash) || !bytes.Equal(f.DHash, other.DHash) {
		return false
	}
	if len(f.ColorHistogram) != len(other.ColorHistogram) ||
		len(f.StructuralDescriptor) != len(other.StructuralDescriptor) {
		return false
	}
	for i, v := range f.ColorHistogram {
		if v != other.ColorHistogram[i] {
			return false
		}
	}
	for i, v := range f.StructuralDescriptor {
		if v != other.StructuralDescriptor[i] {
			return false
		}
	}
	return true
}

// Extract computes the full perceptual fingerprint of a decoded raster.
// The function is pure: the same pixel data always yields the same
// fingerprint, and the raster is never modified.
func Extract(r Raster) (ContentFingerprint, error) {
	if err := r.Validate(); err != nil {
		return ContentFingerprint{}, err
	}

	gray := r.grayImage()

	return ContentFingerprint{
		PHash:                computePHash(gray),
		DHash:                computeDHash(gray),
		ColorHistogram:       computeColorHistogram(r),
		StructuralDescriptor: computeStructuralDescriptor(r),
	}, nil
}

// computePHash downscales to an 8x8 luminance grid and sets each bit when
// the sample exceeds the grid mean. Bits are packed row-major, MSB first.
func computePHash(gray *image.Gray) []byte {
	grid := scaleGray(gray, pHashGrid, pHashGrid)

	var sum uint64
	for y := 0; y < pHashGrid; y++ {
		for x := 0; x < pHashGrid; x++ {
			sum += uint64(grid.GrayAt(x, y).Y)
		}
	}
	mean := float64(sum) / float64(pHashGrid*pHashGrid)

	bits := make([]bool, 0, HashBits)
	for y := 0; y < pHashGrid; y++ {
		for x := 0; x < pHashGrid; x++ {
			bits = append(bits, float64(grid.GrayAt(x, y).Y) > mean)
		}
	}
	return packBits(bits)
}

// computeDHash downscales to a 9x8 luminance grid and sets each bit when a
// sample exceeds its immediate right neighbor.
func computeDHash(gray *image.Gray) []byte {
	grid := scaleGray(gray, dHashRows+1, dHashRows)

	bits := make([]bool, 0, HashBits)
	for y := 0; y < dHashRows; y++ {
		for x := 0; x < dHashRows; x++ {
			bits = append(bits, grid.GrayAt(x, y).Y > grid.GrayAt(x+1, y).Y)
		}
	}
	return packBits(bits)
}

// computeColorHistogram quantizes each color channel into fixed buckets and
// normalizes the counts to sum 1. Grayscale rasters report the same
// distribution on all three channels.
func computeColorHistogram(r Raster) []float64 {
	counts := make([]int, HistogramSize)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			for channel := 0; channel < 3; channel++ {
				bucket := int(r.channelAt(x, y, channel)) * HistogramBuckets / 256
				counts[channel*HistogramBuckets+bucket]++
			}
		}
	}

	total := float64(r.Width * r.Height * 3)
	histogram := make([]float64, HistogramSize)
	for i, count := range counts {
		histogram[i] = float64(count) / total
	}
	return histogram
}

// computeStructuralDescriptor partitions the raster into a fixed block grid
// and records each block's average luminance, normalized into [0, 1].
// Blocks are computed directly from source pixels rather than from a
// resampled grid so the descriptor captures true block means.
func computeStructuralDescriptor(r Raster) []float64 {
	descriptor := make([]float64, DescriptorSize)

	for by := 0; by < BlockGrid; by++ {
		for bx := 0; bx < BlockGrid; bx++ {
			x0 := bx * r.Width / BlockGrid
			x1 := (bx + 1) * r.Width / BlockGrid
			y0 := by * r.Height / BlockGrid
			y1 := (by + 1) * r.Height / BlockGrid

			// Degenerate blocks happen when the image is smaller than
			// the grid; reuse the nearest pixel so output stays fixed-size.
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}
			if x0 >= r.Width {
				x0, x1 = r.Width-1, r.Width
			}
			if y0 >= r.Height {
				y0, y1 = r.Height-1, r.Height
			}

			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sum += r.luminanceAt(x, y)
				}
			}
			count := float64((x1 - x0) * (y1 - y0))
			descriptor[by*BlockGrid+bx] = sum / count / 255.0
		}
	}
	return descriptor
}

// packBits packs a bit sequence into bytes, MSB first, zero-padded at the
// tail when the length is not a byte multiple.
func packBits(bits []bool) []byte {
	packed := make([]byte, 0, (len(bits)+7)/8)
	var current byte
	var count uint

	for _, bit := range bits {
		current <<= 1
		if bit {
			current |= 1
		}
		count++
		if count == 8 {
			packed = append(packed, current)
			current = 0
			count = 0
		}
	}
	if count > 0 {
		current <<= 8 - count
		packed = append(packed, current)
	}
	return packed
}
