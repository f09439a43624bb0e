// Package decoder turns encoded image files and byte buffers into the
// raster form consumed by fingerprint extraction. Fingerprints are only
// comparable when the decode path is deterministic, so every loader here
// must yield identical pixel data for identical encoded input.
package decoder

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"artregistry/fingerprint"
)

// Loader decodes one family of image formats.
type Loader interface {
	// CanLoad determines if this loader can handle the given file.
	CanLoad(path string) bool

	// Load decodes the file into a raster.
	Load(path string) (fingerprint.Raster, error)
}

// Registry maintains the per-extension loader table.
type Registry struct {
	loaders       map[string]Loader
	defaultLoader Loader
	mutex         sync.RWMutex
}

// NewRegistry creates a registry with the standard loaders installed.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}

	opencv := NewOpenCVLoader()
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".bmp", ".webp", ".tif", ".tiff"} {
		r.RegisterLoader(ext, opencv)
	}
	r.defaultLoader = opencv

	// The pure-Go loader covers environments where the OpenCV decode
	// path rejects a file.
	stdlib := NewStdlibLoader()
	for _, ext := range []string{".gif"} {
		r.RegisterLoader(ext, stdlib)
	}

	return r
}

// RegisterLoader installs a loader for a file extension.
func (r *Registry) RegisterLoader(ext string, loader Loader) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.loaders[strings.ToLower(ext)] = loader
}

// GetLoader returns the loader registered for the file's extension, or
// the default loader.
func (r *Registry) GetLoader(path string) Loader {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if loader, ok := r.loaders[strings.ToLower(filepath.Ext(path))]; ok {
		return loader
	}
	return r.defaultLoader
}

// CanLoadFile reports whether any registered loader handles the file.
func (r *Registry) CanLoadFile(path string) bool {
	r.mutex.RLock()
	_, registered := r.loaders[strings.ToLower(filepath.Ext(path))]
	r.mutex.RUnlock()
	return registered
}

// LoadFile decodes a file into a raster, falling back to the pure-Go
// loader when the registered loader fails.
func (r *Registry) LoadFile(path string) (fingerprint.Raster, error) {
	loader := r.GetLoader(path)
	if loader != nil && loader.CanLoad(path) {
		raster, err := loader.Load(path)
		if err == nil {
			return raster, nil
		}
	}

	fallback := NewStdlibLoader()
	raster, err := fallback.Load(path)
	if err != nil {
		return fingerprint.Raster{}, fmt.Errorf("failed to decode image: %s", path)
	}
	return raster, nil
}

// DecodeBytes decodes an encoded image held in memory, the path used for
// uploaded content. OpenCV handles the broad format set; the pure-Go
// decoder is the fallback.
func (r *Registry) DecodeBytes(buf []byte) (fingerprint.Raster, error) {
	if len(buf) == 0 {
		return fingerprint.Raster{}, fmt.Errorf("%w: empty buffer", fingerprint.ErrInvalidRaster)
	}

	raster, err := decodeBytesOpenCV(buf)
	if err == nil {
		return raster, nil
	}
	raster, stdErr := decodeBytesStdlib(buf)
	if stdErr != nil {
		return fingerprint.Raster{}, fmt.Errorf("cannot decode image bytes: %v", err)
	}
	return raster, nil
}
