package verification

import (
	"context"
	"errors"
	"sort"

	"artregistry/fingerprint"
	"artregistry/logging"
	"artregistry/registry"
	"artregistry/types"
)

// Defaults applied when options are zero.
const (
	DefaultCandidateLimit = 50
	DefaultTopMatches     = 5
)

// Options tunes a Verifier.
type Options struct {
	// Compare holds the similarity weights and thresholds.
	Compare fingerprint.CompareOptions
	// CandidateLimit caps how many stored candidates are compared.
	CandidateLimit int
	// TopMatches caps the ranked evidence in a similarity response.
	TopMatches int
}

// Verifier runs the two-tier verification decision: exact content-hash
// lookup first, perceptual similarity as the fallback tier. The whole
// path is read-only and idempotent; a registry failure degrades the
// affected tier instead of failing the request, because asserting
// "unverified" is always safe while a false positive is not.
type Verifier struct {
	store registry.Store
	opts  Options
}

// NewVerifier builds a Verifier over the given registry store.
func NewVerifier(store registry.Store, opts Options) *Verifier {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = DefaultCandidateLimit
	}
	if opts.TopMatches <= 0 {
		opts.TopMatches = DefaultTopMatches
	}
	zero := fingerprint.CompareOptions{}
	if opts.Compare == zero {
		opts.Compare = fingerprint.DefaultCompareOptions()
	}
	return &Verifier{store: store, opts: opts}
}

// Verify resolves a request to its terminal verification state. It never
// returns an error: "not found" is a normal response, and every failure
// inside a tier falls through to the next state.
func (v *Verifier) Verify(ctx context.Context, req types.VerificationRequest) types.VerificationResponse {
	// Exact tier. A malformed fingerprint in the request never blocks
	// this lookup; the two tiers are independent.
	record, err := v.store.FindByContentHash(ctx, req.ContentHash)
	if err == nil && record != nil {
		return types.VerificationResponse{
			Verified:           true,
			VerificationMethod: types.MethodExact,
			Confidence:         100,
			MatchType:          fingerprint.MatchExact,
			Matches: []types.MatchEvidence{{
				ContentHash:  record.ContentHash,
				Confidence:   100,
				MatchType:    fingerprint.MatchExact,
				RegisteredAt: record.RegisteredAt,
			}},
		}
	}
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		logging.LogWarning("Exact lookup degraded for %s: %v", req.ContentHash, err)
	}

	if !req.CheckVisualSimilarity || req.SerializedFingerprint == "" {
		return notVerified()
	}

	// Similarity tier.
	query, err := fingerprint.Deserialize(req.SerializedFingerprint)
	if err != nil {
		logging.LogWarning("Skipping similarity tier for %s: %v", req.ContentHash, err)
		return notVerified()
	}

	candidates, err := v.store.FindCandidates(ctx, query.PHash, query.DHash, v.opts.CandidateLimit)
	if err != nil {
		logging.LogWarning("Candidate lookup degraded for %s: %v", req.ContentHash, err)
		return notVerified()
	}

	matches := v.rankCandidates(query, candidates)
	if len(matches) == 0 {
		return notVerified()
	}
	if len(matches) > v.opts.TopMatches {
		matches = matches[:v.opts.TopMatches]
	}

	// Non-authoritative: similarity evidence flags possible duplication,
	// it does not assert verification.
	return types.VerificationResponse{
		Verified:           false,
		VerificationMethod: types.MethodSimilarity,
		Confidence:         matches[0].Confidence,
		MatchType:          matches[0].MatchType,
		Matches:            matches,
	}
}

// rankCandidates scores every candidate and returns the similar ones
// ordered by confidence, ties broken by earliest registration. The
// candidate list is already capped by the registry, so at most
// CandidateLimit comparisons run.
func (v *Verifier) rankCandidates(query fingerprint.ContentFingerprint, candidates []registry.Candidate) []types.MatchEvidence {
	if len(candidates) > v.opts.CandidateLimit {
		candidates = candidates[:v.opts.CandidateLimit]
	}

	matches := make([]types.MatchEvidence, 0, len(candidates))
	for _, candidate := range candidates {
		stored, err := fingerprint.Deserialize(candidate.Fingerprint)
		if err != nil {
			logging.DebugLog("Skipping candidate %s with corrupt fingerprint: %v", candidate.ContentHash, err)
			continue
		}
		result := fingerprint.Compare(query, stored, v.opts.Compare)
		if !result.IsSimilar {
			continue
		}
		matches = append(matches, types.MatchEvidence{
			ContentHash:  candidate.ContentHash,
			Confidence:   result.Confidence,
			MatchType:    result.MatchType,
			Details:      result.Details,
			RegisteredAt: candidate.RegisteredAt,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].RegisteredAt.Before(matches[j].RegisteredAt)
	})
	return matches
}

// notVerified is the terminal state when neither tier produced evidence.
func notVerified() types.VerificationResponse {
	return types.VerificationResponse{
		Verified:           false,
		VerificationMethod: types.MethodNone,
	}
}
