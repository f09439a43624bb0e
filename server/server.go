// Package server exposes the verification engine over HTTP. Handlers
// translate JSON bodies to the engine's request/response types and never
// leak storage errors to the client.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"artregistry/anchor"
	"artregistry/contenthash"
	"artregistry/decoder"
	"artregistry/fingerprint"
	"artregistry/logging"
	"artregistry/nonce"
	"artregistry/registry"
	"artregistry/types"
	"artregistry/verification"
)

// maxUploadBytes caps the raw image body accepted by the fingerprint
// endpoint.
const maxUploadBytes = 64 << 20

// anchorBatchLimit caps how many pending hashes one anchor run covers.
const anchorBatchLimit = 1024

// Server wires the registry, the verifier, and the nonce store into an
// HTTP boundary.
type Server struct {
	store    registry.Store
	verifier *verification.Verifier
	nonces   *nonce.Store
	decoders *decoder.Registry
}

// New creates a Server over the given store and verifier.
func New(store registry.Store, verifier *verification.Verifier, nonces *nonce.Store) *Server {
	return &Server{
		store:    store,
		verifier: verifier,
		nonces:   nonces,
		decoders: decoder.NewRegistry(),
	}
}

// Router builds the route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/nonce", s.handleIssueNonce)
		r.Post("/verify", s.handleVerify)
		r.Post("/fingerprint", s.handleFingerprint)
		r.Post("/anchor", s.handleAnchor)
		r.Get("/anchor/{root}", s.handleGetAnchor)
		r.Get("/stats", s.handleStats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIssueNonce hands out a one-time token for a later fingerprint
// submission.
func (s *Server) handleIssueNonce(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"nonce": s.nonces.Issue()})
}

// handleVerify runs the verification flow. The response is always 200
// with a structured body; "not found" is not an HTTP error.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req types.VerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContentHash == "" {
		writeError(w, http.StatusBadRequest, "contentHash is required")
		return
	}

	writeJSON(w, http.StatusOK, s.verifier.Verify(r.Context(), req))
}

// fingerprintResponse is the result of hashing and fingerprinting an
// uploaded image.
type fingerprintResponse struct {
	ContentHash           string `json:"contentHash"`
	SerializedFingerprint string `json:"serializedFingerprint"`
	Width                 int    `json:"width"`
	Height                int    `json:"height"`
}

// handleFingerprint computes the content hash and perceptual fingerprint
// of an uploaded image. The upload must spend a previously issued nonce.
func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Registration-Nonce")
	if !s.nonces.Consume(token) {
		writeError(w, http.StatusUnauthorized, "missing, expired, or already-used nonce")
		return
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}
	if len(buf) == 0 {
		writeError(w, http.StatusBadRequest, "empty image body")
		return
	}
	if len(buf) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image body too large")
		return
	}

	hash, err := contenthash.Compute(buf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot hash image body")
		return
	}

	raster, err := s.decoders.DecodeBytes(buf)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "cannot decode image")
		return
	}

	fp, err := fingerprint.Extract(raster)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "cannot fingerprint image")
		return
	}
	wire, err := fingerprint.Serialize(fp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cannot encode fingerprint")
		return
	}

	writeJSON(w, http.StatusOK, fingerprintResponse{
		ContentHash:           hash,
		SerializedFingerprint: wire,
		Width:                 raster.Width,
		Height:                raster.Height,
	})
}

// handleAnchor batches every pending content hash into a Merkle tree and
// persists the batch. An empty backlog returns 200 with batched=0.
func (s *Server) handleAnchor(w http.ResponseWriter, r *http.Request) {
	hashes, err := s.store.ListUnanchored(r.Context(), anchorBatchLimit)
	if err != nil {
		logging.LogError("Anchor run failed listing pending hashes: %v", err)
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	if len(hashes) == 0 {
		writeJSON(w, http.StatusOK, map[string]int{"batched": 0})
		return
	}

	batch, err := anchor.BuildBatch(hashes)
	if err != nil {
		logging.LogError("Anchor run failed building batch: %v", err)
		writeError(w, http.StatusInternalServerError, "cannot build anchor batch")
		return
	}

	if err := s.store.StoreAnchorBatch(r.Context(), *batch); err != nil {
		logging.LogError("Anchor run failed storing batch %s: %v", batch.BatchID, err)
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return
	}

	writeJSON(w, http.StatusOK, batch)
}

// handleGetAnchor returns a stored anchor batch by its root.
func (s *Server) handleGetAnchor(w http.ResponseWriter, r *http.Request) {
	root := chi.URLParam(r, "root")

	batch, err := s.store.FindAnchorBatch(r.Context(), root)
	if errors.Is(err, registry.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no batch anchored under this root")
		return
	}
	if err != nil {
		logging.LogError("Anchor lookup failed for root %s: %v", root, err)
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return
	}

	writeJSON(w, http.StatusOK, batch)
}

// handleStats reports registry totals, optionally filtered by the
// sourcePrefix query parameter.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), r.URL.Query().Get("sourcePrefix"))
	if err != nil {
		logging.LogError("Stats lookup failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.LogError("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
