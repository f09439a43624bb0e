package registry

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"artregistry/contenthash"
	"artregistry/types"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

// newArtwork builds a record whose pHash is the repeated byte b.
func newArtwork(seed string, b byte, registeredAt time.Time) types.ArtworkInfo {
	hash, _ := contenthash.Compute([]byte(seed))
	pHash := make([]byte, 8)
	for i := range pHash {
		pHash[i] = b
	}
	return types.ArtworkInfo{
		ContentHash:  hash,
		PHash:        hex.EncodeToString(pHash),
		DHash:        hex.EncodeToString(pHash),
		Fingerprint:  "afp1:stub:" + seed,
		RegisteredAt: registeredAt,
	}
}

func (s *MemoryStoreSuite) TestStoreAndLookup() {
	s.Run("finds stored record by content hash", func() {
		art := newArtwork("first", 0x00, time.Now())
		s.Require().NoError(s.store.StoreArtwork(s.ctx, art, false))

		found, err := s.store.FindByContentHash(s.ctx, art.ContentHash)
		s.Require().NoError(err)
		s.Equal(art.Fingerprint, found.Fingerprint)
		s.Equal(int64(1), found.ID)
	})

	s.Run("lookup is case and prefix tolerant", func() {
		art := newArtwork("second", 0x00, time.Now())
		s.Require().NoError(s.store.StoreArtwork(s.ctx, art, false))

		_, err := s.store.FindByContentHash(s.ctx, art.ContentHash[2:])
		s.Require().NoError(err)
	})

	s.Run("returns ErrNotFound for unknown hash", func() {
		unknown, _ := contenthash.Compute([]byte("missing"))
		_, err := s.store.FindByContentHash(s.ctx, unknown)
		s.Require().ErrorIs(err, ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestStoreArtworkKeepsFirstRegistration() {
	early := time.Now().Add(-time.Hour)
	art := newArtwork("dup", 0x00, early)
	s.Require().NoError(s.store.StoreArtwork(s.ctx, art, false))

	art.Fingerprint = "afp1:stub:replaced"
	s.Require().NoError(s.store.StoreArtwork(s.ctx, art, false))

	found, err := s.store.FindByContentHash(s.ctx, art.ContentHash)
	s.Require().NoError(err)
	s.Equal("afp1:stub:dup", found.Fingerprint)

	// forceRewrite replaces the record.
	s.Require().NoError(s.store.StoreArtwork(s.ctx, art, true))
	found, err = s.store.FindByContentHash(s.ctx, art.ContentHash)
	s.Require().NoError(err)
	s.Equal("afp1:stub:replaced", found.Fingerprint)
}

func (s *MemoryStoreSuite) TestFindCandidatesOrderAndLimit() {
	now := time.Now()
	s.Require().NoError(s.store.StoreArtwork(s.ctx, newArtwork("far", 0xff, now), false))
	s.Require().NoError(s.store.StoreArtwork(s.ctx, newArtwork("near", 0x01, now), false))
	s.Require().NoError(s.store.StoreArtwork(s.ctx, newArtwork("exact", 0x00, now), false))

	query := make([]byte, 8)

	candidates, err := s.store.FindCandidates(s.ctx, query, query, 10)
	s.Require().NoError(err)
	s.Require().Len(candidates, 3)
	s.Equal("afp1:stub:exact", candidates[0].Fingerprint)
	s.Equal("afp1:stub:near", candidates[1].Fingerprint)
	s.Equal("afp1:stub:far", candidates[2].Fingerprint)

	candidates, err = s.store.FindCandidates(s.ctx, query, query, 2)
	s.Require().NoError(err)
	s.Len(candidates, 2)

	candidates, err = s.store.FindCandidates(s.ctx, query, query, 0)
	s.Require().NoError(err)
	s.Empty(candidates)
}

func (s *MemoryStoreSuite) TestFindCandidatesTieBreaksOnRegistration() {
	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now()
	s.Require().NoError(s.store.StoreArtwork(s.ctx, newArtwork("newer", 0x00, newer), false))
	s.Require().NoError(s.store.StoreArtwork(s.ctx, newArtwork("older", 0x00, older), false))

	candidates, err := s.store.FindCandidates(s.ctx, make([]byte, 8), make([]byte, 8), 10)
	s.Require().NoError(err)
	s.Require().Len(candidates, 2)
	s.Equal("afp1:stub:older", candidates[0].Fingerprint)
}

func (s *MemoryStoreSuite) TestAnchorLifecycle() {
	now := time.Now()
	a := newArtwork("a", 0x01, now.Add(-3*time.Minute))
	b := newArtwork("b", 0x02, now.Add(-2*time.Minute))
	c := newArtwork("c", 0x03, now.Add(-time.Minute))
	for _, art := range []types.ArtworkInfo{a, b, c} {
		s.Require().NoError(s.store.StoreArtwork(s.ctx, art, false))
	}

	pending, err := s.store.ListUnanchored(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal([]string{a.ContentHash, b.ContentHash, c.ContentHash}, pending)

	batch := types.AnchorBatch{
		BatchID:    "batch-1",
		Root:       "0xroot",
		AnchoredAt: now,
		Items: []types.AnchorItem{
			{ContentHash: a.ContentHash, Position: 0, Proof: []string{"p0"}},
			{ContentHash: b.ContentHash, Position: 1, Proof: []string{"p1"}},
		},
	}
	s.Require().NoError(s.store.StoreAnchorBatch(s.ctx, batch))

	pending, err = s.store.ListUnanchored(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal([]string{c.ContentHash}, pending)

	found, err := s.store.FindAnchorBatch(s.ctx, "0xroot")
	s.Require().NoError(err)
	s.Len(found.Items, 2)

	_, err = s.store.FindAnchorBatch(s.ctx, "0xother")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *MemoryStoreSuite) TestStats() {
	now := time.Now()
	a := newArtwork("a", 0x01, now)
	b := newArtwork("b", 0x01, now)
	b.SourcePrefix = "studio"
	for _, art := range []types.ArtworkInfo{a, b} {
		s.Require().NoError(s.store.StoreArtwork(s.ctx, art, false))
	}

	stats, err := s.store.Stats(s.ctx, "")
	s.Require().NoError(err)
	s.Equal(2, stats.TotalArtworks)
	s.Equal(1, stats.UniqueFingerprints)

	stats, err = s.store.Stats(s.ctx, "studio")
	s.Require().NoError(err)
	s.Equal(1, stats.TotalArtworks)
}
