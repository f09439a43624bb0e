package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artregistry/contenthash"
	"artregistry/nonce"
	"artregistry/registry"
	"artregistry/types"
	"artregistry/verification"
)

func newTestServer(t *testing.T) (*Server, *registry.InMemory) {
	t.Helper()
	store := registry.NewInMemory()
	verifier := verification.NewVerifier(store, verification.Options{})
	return New(store, verifier, nonce.NewStore(time.Minute)), store
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func registerArtwork(t *testing.T, store *registry.InMemory, seed byte) string {
	t.Helper()
	hash, err := contenthash.Compute([]byte{seed})
	require.NoError(t, err)
	require.NoError(t, store.StoreArtwork(context.Background(), types.ArtworkInfo{
		ContentHash:  hash,
		RegisteredAt: time.Now().UTC(),
	}, false))
	return hash
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestVerifyExactMatch(t *testing.T) {
	srv, store := newTestServer(t)
	hash := registerArtwork(t, store, 1)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/verify", types.VerificationRequest{
		ContentHash: hash,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.VerificationResponse
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Verified)
	assert.Equal(t, types.MethodExact, resp.VerificationMethod)
	assert.Equal(t, 100.0, resp.Confidence)
}

func TestVerifyUnknownHash(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodPost, "/api/verify", types.VerificationRequest{
		ContentHash: "0x" + string(bytes.Repeat([]byte("a"), 64)),
	})
	require.Equal(t, http.StatusOK, rec.Code, "an unknown hash is a normal response, not an error")

	var resp types.VerificationResponse
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Verified)
	assert.Equal(t, types.MethodNone, resp.VerificationMethod)
}

func TestVerifyRejectsBadBody(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/verify", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/verify", types.VerificationRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNonceLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/nonce", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body["nonce"])

	upload := encodeTestPNG(t)

	// First use succeeds, replay is rejected.
	rec = doFingerprint(t, router, upload, body["nonce"])
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doFingerprint(t, router, upload, body["nonce"])
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doFingerprint(t, router, upload, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFingerprintUpload(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	upload := encodeTestPNG(t)
	rec := doFingerprint(t, router, upload, issueNonce(t, router))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp fingerprintResponse
	decodeBody(t, rec, &resp)

	wantHash, err := contenthash.Compute(upload)
	require.NoError(t, err)
	assert.Equal(t, wantHash, resp.ContentHash)
	assert.NotEmpty(t, resp.SerializedFingerprint)
	assert.Equal(t, 16, resp.Width)
	assert.Equal(t, 16, resp.Height)
}

func TestFingerprintRejectsUndecodable(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doFingerprint(t, router, []byte("not an image"), issueNonce(t, router))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doFingerprint(t, router, nil, issueNonce(t, router))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnchorFlow(t *testing.T) {
	srv, store := newTestServer(t)
	router := srv.Router()

	hashA := registerArtwork(t, store, 1)
	hashB := registerArtwork(t, store, 2)
	hashC := registerArtwork(t, store, 3)

	rec := doJSON(t, router, http.MethodPost, "/api/anchor", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var batch types.AnchorBatch
	decodeBody(t, rec, &batch)
	assert.NotEmpty(t, batch.BatchID)
	assert.NotEmpty(t, batch.Root)
	require.Len(t, batch.Items, 3)
	covered := make(map[string]bool)
	for _, item := range batch.Items {
		covered[item.ContentHash] = true
	}
	assert.True(t, covered[hashA] && covered[hashB] && covered[hashC])

	// The stored batch is retrievable by root.
	rec = doJSON(t, router, http.MethodGet, "/api/anchor/"+batch.Root, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched types.AnchorBatch
	decodeBody(t, rec, &fetched)
	assert.Equal(t, batch.Root, fetched.Root)

	// Nothing left to anchor.
	rec = doJSON(t, router, http.MethodPost, "/api/anchor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var empty map[string]int
	decodeBody(t, rec, &empty)
	assert.Equal(t, 0, empty["batched"])
}

func TestGetAnchorUnknownRoot(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/anchor/0xdeadbeef", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	srv, store := newTestServer(t)
	registerArtwork(t, store, 1)
	registerArtwork(t, store, 2)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats registry.Stats
	decodeBody(t, rec, &stats)
	assert.Equal(t, 2, stats.TotalArtworks)
}

func issueNonce(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/nonce", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decodeBody(t, rec, &body)
	return body["nonce"]
}

func doFingerprint(t *testing.T, router http.Handler, body []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/fingerprint", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("X-Registration-Nonce", token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func encodeTestPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
