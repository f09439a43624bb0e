package fingerprint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// WireVersion tags the serialized fingerprint format. Any change to the
// framing below must bump this tag so older records are never silently
// misread.
const WireVersion = "afp1"

// ErrCorruptFingerprint is returned when a serialized fingerprint is
// truncated, has an unknown version tag, or a field fails to parse.
var ErrCorruptFingerprint = errors.New("corrupt fingerprint")

// Serialize encodes a fingerprint into its versioned transport string.
// Layout: version : pHash hex : dHash hex : count;floats : count;floats
// Bit vectors are fixed-width hex; float lists are length-prefixed so a
// truncated payload can never parse as a shorter valid one.
func Serialize(f ContentFingerprint) (string, error) {
	if !f.Valid() {
		return "", fmt.Errorf("%w: fingerprint has wrong field sizes", ErrCorruptFingerprint)
	}

	parts := []string{
		WireVersion,
		hex.EncodeToString(f.PHash),
		hex.EncodeToString(f.DHash),
		encodeFloats(f.ColorHistogram),
		encodeFloats(f.StructuralDescriptor),
	}
	return strings.Join(parts, ":"), nil
}

// Deserialize decodes a transport string produced by Serialize. On any
// failure it returns ErrCorruptFingerprint and no partial result.
func Deserialize(encoded string) (ContentFingerprint, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 5 {
		return ContentFingerprint{}, fmt.Errorf("%w: expected 5 fields, got %d", ErrCorruptFingerprint, len(parts))
	}
	if parts[0] != WireVersion {
		return ContentFingerprint{}, fmt.Errorf("%w: unknown version %q", ErrCorruptFingerprint, parts[0])
	}

	pHash, err := decodeBitVector(parts[1])
	if err != nil {
		return ContentFingerprint{}, fmt.Errorf("%w: pHash: %v", ErrCorruptFingerprint, err)
	}
	dHash, err := decodeBitVector(parts[2])
	if err != nil {
		return ContentFingerprint{}, fmt.Errorf("%w: dHash: %v", ErrCorruptFingerprint, err)
	}
	histogram, err := decodeFloats(parts[3], HistogramSize)
	if err != nil {
		return ContentFingerprint{}, fmt.Errorf("%w: histogram: %v", ErrCorruptFingerprint, err)
	}
	descriptor, err := decodeFloats(parts[4], DescriptorSize)
	if err != nil {
		return ContentFingerprint{}, fmt.Errorf("%w: descriptor: %v", ErrCorruptFingerprint, err)
	}

	return ContentFingerprint{
		PHash:                pHash,
		DHash:                dHash,
		ColorHistogram:       histogram,
		StructuralDescriptor: descriptor,
	}, nil
}

// encodeFloats renders a float list as "count;v,v,...". Values use the
// shortest representation that round-trips exactly.
func encodeFloats(values []float64) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(values)))
	b.WriteByte(';')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// decodeFloats parses a length-prefixed float list and enforces the
// expected fixed size.
func decodeFloats(field string, want int) ([]float64, error) {
	countStr, list, found := strings.Cut(field, ";")
	if !found {
		return nil, errors.New("missing length prefix")
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return nil, fmt.Errorf("bad length prefix %q", countStr)
	}
	if count != want {
		return nil, fmt.Errorf("expected %d values, prefix says %d", want, count)
	}

	raw := strings.Split(list, ",")
	if len(raw) != want {
		return nil, fmt.Errorf("expected %d values, found %d", want, len(raw))
	}

	values := make([]float64, want)
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value %q", s)
		}
		values[i] = v
	}
	return values, nil
}

// decodeBitVector parses a fixed-width hex bit vector.
func decodeBitVector(field string) ([]byte, error) {
	if len(field) != HashSize*2 {
		return nil, fmt.Errorf("expected %d hex chars, got %d", HashSize*2, len(field))
	}
	return hex.DecodeString(field)
}
