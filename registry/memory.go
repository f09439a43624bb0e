package registry

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"artregistry/contenthash"
	"artregistry/types"
)

// InMemory is a process-local Store for tests and single-run tooling.
// All methods are safe for concurrent use.
type InMemory struct {
	mu       sync.RWMutex
	artworks map[string]types.ArtworkInfo
	anchors  map[string]types.AnchorBatch
	anchored map[string]bool
	nextID   int64
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		artworks: make(map[string]types.ArtworkInfo),
		anchors:  make(map[string]types.AnchorBatch),
		anchored: make(map[string]bool),
	}
}

// FindByContentHash returns the record with the exact content hash.
func (s *InMemory) FindByContentHash(_ context.Context, hash string) (*types.ArtworkInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.artworks[contenthash.Normalize(hash)]
	if !ok {
		return nil, fmt.Errorf("artwork %s: %w", hash, ErrNotFound)
	}
	copied := info
	return &copied, nil
}

// StoreArtwork registers a record, keeping the first registration unless
// forceRewrite is set.
func (s *InMemory) StoreArtwork(_ context.Context, info types.ArtworkInfo, forceRewrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := contenthash.Normalize(info.ContentHash)
	if _, exists := s.artworks[key]; exists && !forceRewrite {
		return nil
	}
	s.nextID++
	info.ID = s.nextID
	info.ContentHash = key
	s.artworks[key] = info
	return nil
}

// FindCandidates returns stored fingerprints ordered by pHash Hamming
// distance to the query, closest first, ties broken by earliest
// registration. Never returns more than limit candidates.
func (s *InMemory) FindCandidates(_ context.Context, pHash, dHash []byte, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		candidate Candidate
		distance  int
	}
	all := make([]scored, 0, len(s.artworks))
	for _, info := range s.artworks {
		if info.Fingerprint == "" {
			continue
		}
		stored, err := hex.DecodeString(info.PHash)
		if err != nil {
			continue
		}
		all = append(all, scored{
			candidate: Candidate{
				Fingerprint:  info.Fingerprint,
				ContentHash:  info.ContentHash,
				RegisteredAt: info.RegisteredAt,
			},
			distance: hammingBytes(pHash, stored),
		})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].distance != all[j].distance {
			return all[i].distance < all[j].distance
		}
		return all[i].candidate.RegisteredAt.Before(all[j].candidate.RegisteredAt)
	})

	if len(all) > limit {
		all = all[:limit]
	}
	candidates := make([]Candidate, len(all))
	for i, sc := range all {
		candidates[i] = sc.candidate
	}
	return candidates, nil
}

// ListUnanchored returns content hashes absent from every anchor batch,
// oldest registration first.
func (s *InMemory) ListUnanchored(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]types.ArtworkInfo, 0, len(s.artworks))
	for hash, info := range s.artworks {
		if !s.anchored[hash] {
			pending = append(pending, info)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].RegisteredAt.Before(pending[j].RegisteredAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	hashes := make([]string, len(pending))
	for i, info := range pending {
		hashes[i] = info.ContentHash
	}
	return hashes, nil
}

// StoreAnchorBatch persists a batch and marks its items anchored.
func (s *InMemory) StoreAnchorBatch(_ context.Context, batch types.AnchorBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.anchors[batch.Root] = batch
	for _, item := range batch.Items {
		s.anchored[contenthash.Normalize(item.ContentHash)] = true
	}
	return nil
}

// FindAnchorBatch returns the batch anchored under the given root.
func (s *InMemory) FindAnchorBatch(_ context.Context, root string) (*types.AnchorBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.anchors[root]
	if !ok {
		return nil, fmt.Errorf("anchor %s: %w", root, ErrNotFound)
	}
	copied := batch
	return &copied, nil
}

// Stats reports totals, optionally filtered by source prefix.
func (s *InMemory) Stats(_ context.Context, sourcePrefix string) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}
	unique := make(map[string]bool)
	for hash, info := range s.artworks {
		if sourcePrefix != "" && info.SourcePrefix != sourcePrefix {
			continue
		}
		stats.TotalArtworks++
		unique[info.PHash] = true
		if s.anchored[hash] {
			stats.AnchoredArtworks++
		}
	}
	stats.UniqueFingerprints = len(unique)
	return stats, nil
}

// hammingBytes counts differing bits; length mismatches count every
// unmatched bit as different so malformed rows sort last.
func hammingBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	distance := 0
	for i := 0; i < n; i++ {
		distance += bits.OnesCount8(a[i] ^ b[i])
	}
	distance += 8 * (len(a) - n)
	distance += 8 * (len(b) - n)
	return distance
}
