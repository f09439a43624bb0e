package fingerprint

import (
	"math"
	"math/bits"
)

// MatchType classifies how closely two fingerprints relate. The "exact"
// value is reserved for identical content hashes and is assigned by the
// verification layer, never by Compare.
type MatchType string

// Closed set of match classifications.
const (
	MatchExact         MatchType = "exact"
	MatchNearDuplicate MatchType = "near-duplicate"
	MatchModified      MatchType = "modified"
	MatchDistinct      MatchType = "distinct"
)

// CompareOptions holds the metric weights and classification thresholds.
// Weights must sum to 1; the perceptual hash carries the largest weight
// because it is the most robust metric under benign transforms.
type CompareOptions struct {
	HashWeight       float64
	ColorWeight      float64
	StructuralWeight float64

	// DuplicateThreshold and ModifiedThreshold split the 0-100 confidence
	// range into near-duplicate / modified / distinct.
	DuplicateThreshold float64
	ModifiedThreshold  float64
}

// DefaultCompareOptions returns the calibrated defaults.
func DefaultCompareOptions() CompareOptions {
	return CompareOptions{
		HashWeight:         0.5,
		ColorWeight:        0.25,
		StructuralWeight:   0.25,
		DuplicateThreshold: 85,
		ModifiedThreshold:  60,
	}
}

// SimilarityDetails carries the per-metric scores behind a comparison.
type SimilarityDetails struct {
	HashSimilarity       float64 `json:"hashSimilarity"`
	ColorSimilarity      float64 `json:"colorSimilarity"`
	StructuralSimilarity float64 `json:"structuralSimilarity"`
}

// SimilarityResult is the pure output of Compare. It is symmetric in the
// two inputs: Compare(a, b) == Compare(b, a).
type SimilarityResult struct {
	IsSimilar  bool              `json:"isSimilar"`
	Confidence float64           `json:"confidence"`
	MatchType  MatchType         `json:"matchType"`
	Details    SimilarityDetails `json:"details"`
}

// Compare scores two fingerprints across every metric and folds the
// scores into one 0-100 confidence with a match classification. The
// function has no side effects and performs no I/O; malformed inputs
// score as distinct rather than erroring, since the similarity tier must
// degrade instead of blocking verification.
func Compare(a, b ContentFingerprint, opts CompareOptions) SimilarityResult {
	if !a.Valid() || !b.Valid() {
		return SimilarityResult{MatchType: MatchDistinct}
	}

	details := SimilarityDetails{
		HashSimilarity:       hashSimilarity(a, b),
		ColorSimilarity:      colorSimilarity(a.ColorHistogram, b.ColorHistogram),
		StructuralSimilarity: structuralSimilarity(a.StructuralDescriptor, b.StructuralDescriptor),
	}

	confidence := opts.HashWeight*details.HashSimilarity +
		opts.ColorWeight*details.ColorSimilarity +
		opts.StructuralWeight*details.StructuralSimilarity

	result := SimilarityResult{
		Confidence: confidence,
		Details:    details,
	}

	switch {
	case confidence >= opts.DuplicateThreshold:
		result.MatchType = MatchNearDuplicate
		result.IsSimilar = true
	case confidence >= opts.ModifiedThreshold:
		result.MatchType = MatchModified
		result.IsSimilar = true
	default:
		result.MatchType = MatchDistinct
	}
	return result
}

// hashSimilarity maps the mean Hamming distance of the two bit vectors
// onto a 0-100 scale.
func hashSimilarity(a, b ContentFingerprint) float64 {
	pDist := float64(hammingDistance(a.PHash, b.PHash))
	dDist := float64(hammingDistance(a.DHash, b.DHash))
	mean := (pDist + dDist) / 2
	return 100 * (1 - mean/HashBits)
}

// colorSimilarity maps the L1 histogram distance, clipped to [0, 1],
// onto a 0-100 scale. Both histograms sum to 1 so the raw L1 distance
// lies in [0, 2]; halving normalizes it before clipping.
func colorSimilarity(a, b []float64) float64 {
	var l1 float64
	for i := range a {
		l1 += math.Abs(a[i] - b[i])
	}
	distance := l1 / 2
	if distance > 1 {
		distance = 1
	}
	return 100 * (1 - distance)
}

// structuralSimilarity maps the mean absolute block-luminance difference
// onto a 0-100 scale. Block values are already normalized to [0, 1].
func structuralSimilarity(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	distance := sum / float64(len(a))
	if distance > 1 {
		distance = 1
	}
	return 100 * (1 - distance)
}

// hammingDistance counts differing bits between equal-length bit vectors.
func hammingDistance(a, b []byte) int {
	distance := 0
	for i := range a {
		distance += bits.OnesCount8(a[i] ^ b[i])
	}
	return distance
}
