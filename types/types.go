package types

import (
	"time"

	"artregistry/fingerprint"
)

// ArtworkInfo holds the registered record for one piece of content. The
// content hash is the canonical identity; the fingerprint is the wire
// form understood by the fingerprint serializer. Both are computed once
// at ingestion and never change afterwards.
type ArtworkInfo struct {
	ID           int64     `json:"id"`
	ContentHash  string    `json:"content_hash"`
	IPFSCID      string    `json:"ipfs_cid,omitempty"`
	SourcePath   string    `json:"source_path,omitempty"`
	SourcePrefix string    `json:"source_prefix,omitempty"`
	Format       string    `json:"format,omitempty"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Size         int64     `json:"size"`
	PHash        string    `json:"phash"`
	DHash        string    `json:"dhash"`
	Fingerprint  string    `json:"fingerprint"`
	CreatedWith  string    `json:"created_with,omitempty"`
	ModifiedAt   string    `json:"modified_at,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Verification methods. Closed set: the orchestrator produces no other
// values.
const (
	MethodExact      = "exact"
	MethodSimilarity = "similarity"
	MethodNone       = "none"
)

// VerificationRequest is the boundary input to the verification
// orchestrator.
type VerificationRequest struct {
	ContentHash           string `json:"contentHash"`
	IPFSCID               string `json:"ipfsCID,omitempty"`
	SerializedFingerprint string `json:"serializedFingerprint,omitempty"`
	CheckVisualSimilarity bool   `json:"checkVisualSimilarity"`
}

// MatchEvidence is one ranked similarity match in a verification
// response.
type MatchEvidence struct {
	ContentHash  string                        `json:"contentHash"`
	Confidence   float64                       `json:"confidence"`
	MatchType    fingerprint.MatchType         `json:"matchType"`
	Details      fingerprint.SimilarityDetails `json:"details"`
	RegisteredAt time.Time                     `json:"registeredAt"`
}

// VerificationResponse is the structured terminal result of a
// verification run. It is always produced; "not found" is a normal
// response, never an error.
type VerificationResponse struct {
	Verified           bool                  `json:"verified"`
	VerificationMethod string                `json:"verificationMethod"`
	Confidence         float64               `json:"confidence,omitempty"`
	MatchType          fingerprint.MatchType `json:"matchType,omitempty"`
	Matches            []MatchEvidence       `json:"matches,omitempty"`
}

// AnchorBatch records one Merkle batch: the root that was anchored and
// the per-item inclusion proofs that let any item be verified against it
// after the tree itself is discarded.
type AnchorBatch struct {
	BatchID    string       `json:"batch_id"`
	Root       string       `json:"root"`
	Items      []AnchorItem `json:"items"`
	AnchoredAt time.Time    `json:"anchored_at"`
}

// AnchorItem is one content hash's position and proof within a batch.
type AnchorItem struct {
	ContentHash string   `json:"content_hash"`
	Position    int      `json:"position"`
	Proof       []string `json:"proof"`
}
