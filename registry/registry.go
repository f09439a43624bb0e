package registry

import (
	"context"
	"errors"
	"time"

	"artregistry/types"
)

// Sentinel errors. Callers check these with errors.Is; the verification
// layer treats ErrUnavailable as a degraded-mode signal, never as fatal.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("registry unavailable")
)

// Candidate is one stored fingerprint returned from a candidate lookup.
// The fingerprint is in wire form; deserialization and scoring happen in
// the caller.
type Candidate struct {
	Fingerprint  string
	ContentHash  string
	RegisteredAt time.Time
}

// CandidateFinder is the read-only duplicate-candidate lookup consumed by
// the verification orchestrator. Implementations order their results and
// never return more than limit candidates; zero results is normal.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, pHash, dHash []byte, limit int) ([]Candidate, error)
}

// Stats summarizes registry contents.
type Stats struct {
	TotalArtworks      int
	UniqueFingerprints int
	AnchoredArtworks   int
}

// Store is the full persistence contract: exact-hash lookup, candidate
// lookup, artwork registration, and anchor batch bookkeeping.
type Store interface {
	CandidateFinder

	// FindByContentHash returns the record with the exact content hash,
	// or ErrNotFound.
	FindByContentHash(ctx context.Context, contentHash string) (*types.ArtworkInfo, error)

	// StoreArtwork registers a record. When forceRewrite is false an
	// existing record with the same content hash is left untouched.
	StoreArtwork(ctx context.Context, info types.ArtworkInfo, forceRewrite bool) error

	// ListUnanchored returns content hashes not yet included in any
	// anchor batch, oldest registration first.
	ListUnanchored(ctx context.Context, limit int) ([]string, error)

	// StoreAnchorBatch persists a batch root with its per-item proofs.
	StoreAnchorBatch(ctx context.Context, batch types.AnchorBatch) error

	// FindAnchorBatch returns the batch anchored under the given root,
	// or ErrNotFound.
	FindAnchorBatch(ctx context.Context, root string) (*types.AnchorBatch, error)

	// Stats reports registry totals, optionally filtered by source prefix.
	Stats(ctx context.Context, sourcePrefix string) (*Stats, error)
}
