// Package ingest walks a folder of artwork files, computes their content
// identity and perceptual fingerprint, and registers them in the store.
package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"artregistry/contenthash"
	"artregistry/decoder"
	"artregistry/fingerprint"
	"artregistry/logging"
	"artregistry/registry"
	"artregistry/types"
)

// Options defines the options for an ingest run
type Options struct {
	FolderPath   string
	SourcePrefix string
	ForceRewrite bool
	DebugMode    bool
	Workers      int
}

// Result holds the result of processing one artwork file
type Result struct {
	Path    string
	Success bool
	Skipped bool
	Error   error
}

// ScanAndStoreFolder scans a folder and registers artwork information in the store
func ScanAndStoreFolder(ctx context.Context, store registry.Store, options Options) error {
	workers := options.Workers
	if workers <= 0 {
		workers = 8
	}

	var wg sync.WaitGroup
	resultsChan := make(chan Result, 100)
	semaphore := make(chan struct{}, workers)

	decoders := decoder.NewRegistry()

	totalFiles := countFilesToProcess(decoders, options)
	printStartupInfo(totalFiles, options)

	tracker := setupProgressTracker(totalFiles, resultsChan)
	defer tracker.stop()

	startTime := time.Now()
	err := walkAndProcessFiles(ctx, store, decoders, options, &wg, resultsChan, semaphore)

	wg.Wait()
	close(resultsChan)
	close(semaphore)

	printCompletionStats(tracker, startTime, options)

	return err
}

// countFilesToProcess counts the files a registered loader can decode
func countFilesToProcess(decoders *decoder.Registry, options Options) int {
	total := 0

	if options.DebugMode {
		logging.DebugLog("Starting artwork scan on folder: %s", options.FolderPath)
		logging.DebugLog("Force rewrite: %v, Source prefix: %s", options.ForceRewrite, options.SourcePrefix)
	}

	filepath.Walk(options.FolderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if decoders.CanLoadFile(path) {
			total++
		}
		return nil
	})

	return total
}

// printStartupInfo displays information about the run before starting
func printStartupInfo(totalFiles int, options Options) {
	fmt.Printf("Starting artwork registration...\nTotal files to process: %d\n", totalFiles)
	fmt.Printf("Force rewrite mode: %v\n", options.ForceRewrite)

	if options.SourcePrefix != "" {
		fmt.Printf("Source prefix: %s\n", options.SourcePrefix)
	}

	if options.DebugMode {
		fmt.Printf("Debug mode: enabled\n")
		logging.DebugLog("Found %d artwork files to process", totalFiles)
	}
}

// ProgressTracker tracks progress of the ingest operation
type ProgressTracker struct {
	processed  int
	skipped    int
	errors     int
	ticker     *time.Ticker
	done       chan bool
	mu         sync.Mutex
	totalFiles int
}

// setupProgressTracker initializes the progress tracker
func setupProgressTracker(totalFiles int, resultsChan chan Result) *ProgressTracker {
	tracker := &ProgressTracker{
		ticker:     time.NewTicker(500 * time.Millisecond),
		done:       make(chan bool),
		totalFiles: totalFiles,
	}

	go tracker.displayProgress()
	go tracker.processResults(resultsChan)

	return tracker
}

// displayProgress shows the progress periodically
func (p *ProgressTracker) displayProgress() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.mu.Lock()
			if p.errors > 0 {
				fmt.Printf("\rProgress: %d/%d (Skipped: %d, Errors: %d)",
					p.processed, p.totalFiles, p.skipped, p.errors)
			} else {
				fmt.Printf("\rProgress: %d/%d (Skipped: %d)",
					p.processed, p.totalFiles, p.skipped)
			}
			p.mu.Unlock()
		}
	}
}

// processResults updates the tracker state based on processing results
func (p *ProgressTracker) processResults(resultsChan chan Result) {
	for result := range resultsChan {
		p.mu.Lock()
		p.processed++
		if result.Skipped {
			p.skipped++
		}
		if !result.Success {
			p.errors++
			if result.Error != nil {
				logging.LogArtworkProcessed(result.Path, false, result.Error.Error())
			}
		} else if !result.Skipped {
			logging.LogArtworkProcessed(result.Path, true, "")
		}
		p.mu.Unlock()
	}
}

// stop ends the progress tracking
func (p *ProgressTracker) stop() {
	p.ticker.Stop()
	p.done <- true
}

// walkAndProcessFiles traverses the directory and processes each file
func walkAndProcessFiles(ctx context.Context, store registry.Store, decoders *decoder.Registry, options Options, wg *sync.WaitGroup, resultsChan chan Result, semaphore chan struct{}) error {
	return filepath.Walk(options.FolderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			if err != nil && options.DebugMode {
				logging.LogError("Error accessing path %s: %v", path, err)
			}
			return nil
		}

		if decoders.CanLoadFile(path) {
			wg.Add(1)
			semaphore <- struct{}{}

			go func(p string) {
				defer wg.Done()
				defer func() { <-semaphore }()

				resultsChan <- processAndStoreArtwork(ctx, store, decoders, p, options)
			}(path)
		}

		return nil
	})
}

// printCompletionStats displays statistics after the run completes
func printCompletionStats(tracker *ProgressTracker, startTime time.Time, options Options) {
	elapsed := time.Since(startTime)

	if options.DebugMode {
		logging.DebugLog("Ingest completed in %v. Processed: %d, Skipped: %d, Errors: %d",
			elapsed, tracker.processed, tracker.skipped, tracker.errors)
	}

	fmt.Println("\nRegistration complete.")
	fmt.Printf("Processed %d artworks in %v.\n", tracker.processed, elapsed.Round(time.Second))

	if tracker.skipped > 0 {
		fmt.Printf("Skipped %d already-registered artworks.\n", tracker.skipped)
	}

	if tracker.errors > 0 {
		fmt.Printf("Encountered %d errors during registration.\n", tracker.errors)
		fmt.Println("Check the log file for details.")
	}
}

// processAndStoreArtwork registers a single artwork file in the store
func processAndStoreArtwork(ctx context.Context, store registry.Store, decoders *decoder.Registry, path string, options Options) Result {
	result := Result{Path: path}

	buf, err := os.ReadFile(path)
	if err != nil {
		result.Error = fmt.Errorf("cannot read file %s: %v", path, err)
		return result
	}

	hash, err := contenthash.Compute(buf)
	if err != nil {
		result.Error = fmt.Errorf("cannot hash file %s: %v", path, err)
		return result
	}

	// Identical bytes are already registered under this hash; nothing to add.
	if !options.ForceRewrite {
		if _, err := store.FindByContentHash(ctx, hash); err == nil {
			if options.DebugMode {
				logging.DebugLog("Skipping already-registered artwork: %s", path)
			}
			result.Success = true
			result.Skipped = true
			return result
		} else if !errors.Is(err, registry.ErrNotFound) {
			result.Error = fmt.Errorf("registry error for %s: %v", path, err)
			return result
		}
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		result.Error = fmt.Errorf("cannot stat file %s: %v", path, err)
		return result
	}

	raster, err := decoders.LoadFile(path)
	if err != nil {
		result.Error = fmt.Errorf("failed to decode %s: %v", path, err)
		return result
	}

	fp, err := fingerprint.Extract(raster)
	if err != nil {
		result.Error = fmt.Errorf("failed to fingerprint %s: %v", path, err)
		return result
	}

	wire, err := fingerprint.Serialize(fp)
	if err != nil {
		result.Error = fmt.Errorf("failed to encode fingerprint for %s: %v", path, err)
		return result
	}

	info := types.ArtworkInfo{
		ContentHash:  hash,
		SourcePath:   path,
		SourcePrefix: options.SourcePrefix,
		Format:       strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Width:        raster.Width,
		Height:       raster.Height,
		Size:         fileInfo.Size(),
		PHash:        hex.EncodeToString(fp.PHash),
		DHash:        hex.EncodeToString(fp.DHash),
		Fingerprint:  wire,
		ModifiedAt:   fileInfo.ModTime().Format(time.RFC3339),
		RegisteredAt: time.Now().UTC(),
	}

	applyMetadata(&info, path, options.DebugMode)

	if err := store.StoreArtwork(ctx, info, options.ForceRewrite); err != nil {
		result.Error = fmt.Errorf("cannot store data for %s: %v", path, err)
		return result
	}

	result.Success = true
	return result
}

// applyMetadata enriches a record with exiftool metadata when the tool is
// installed. Decoded dimensions win over reported ones.
func applyMetadata(info *types.ArtworkInfo, path string, debugMode bool) {
	if !decoder.ExiftoolAvailable() {
		return
	}

	meta, err := decoder.DescribeFile(path)
	if err != nil {
		if debugMode {
			logging.DebugLog("Metadata extraction failed for %s: %v", path, err)
		}
		return
	}

	if meta.Format != "" {
		info.Format = strings.ToLower(meta.Format)
	}
	info.CreatedWith = meta.CreatedWith
}
