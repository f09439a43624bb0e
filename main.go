package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"
	"time"

	"artregistry/anchor"
	"artregistry/config"
	"artregistry/contenthash"
	"artregistry/decoder"
	"artregistry/fingerprint"
	"artregistry/ingest"
	"artregistry/logging"
	"artregistry/nonce"
	"artregistry/registry"
	"artregistry/server"
	"artregistry/signalhandler"
	"artregistry/types"
	"artregistry/utils"
	"artregistry/verification"
)

func main() {
	// Set up proper signal handling
	signalhandler.SetupHandler(logging.CloseLogger)

	// Set the optimal number of CPUs to use
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	// Parse command line arguments into a map
	args := utils.ParseArguments()

	command, hasCommand := args["command"]

	cfg := loadConfig(args)

	// Set database path, flag wins over config
	dbPath := cfg.DatabasePath
	if customDB, ok := args["database"]; ok && customDB != "" {
		dbPath = customDB
	} else if customDB, ok := args["db"]; ok && customDB != "" {
		// Allow --db as an alias for --database
		dbPath = customDB
	}

	// Setup debug logging if enabled
	debugMode := false
	if _, ok := args["debug"]; ok {
		debugMode = true
		logPath := "artregistry.log"
		if customLogPath, ok := args["logfile"]; ok && customLogPath != "" {
			logPath = customLogPath
		}
		if err := logging.SetupLogger(logPath); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", logPath)
		}
	}

	// Check if required arguments are missing
	showUsage := !hasCommand

	if hasCommand && command == "register" && args["folder"] == "" {
		showUsage = true
	}

	if hasCommand && command == "verify" && args["image"] == "" {
		showUsage = true
	}

	if showUsage {
		utils.PrintUsage()
		os.Exit(1)
	}

	switch command {
	case "register":
		handleRegisterCommand(args, dbPath, debugMode)
	case "verify":
		handleVerifyCommand(args, cfg, dbPath, debugMode)
	case "anchor":
		handleAnchorCommand(dbPath, debugMode)
	case "serve":
		handleServeCommand(args, cfg, dbPath)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}
}

// loadConfig reads the YAML config, honoring a --config override.
func loadConfig(args map[string]string) *config.Config {
	if path, ok := args["config"]; ok && path != "" {
		cfg, _, err := config.LoadFromPath(path)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		return cfg
	}

	cfg, loaded, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if loaded != "" {
		logging.DebugLog("Loaded config from %s", loaded)
	}
	return cfg
}

// openStore initializes the SQLite store with retry logic.
func openStore(dbPath string) *registry.SQLite {
	var store *registry.SQLite
	var err error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		store, err = registry.OpenSQLite(dbPath)
		if err == nil {
			break
		}

		if i < maxRetries-1 {
			log.Printf("Error initializing database (attempt %d/%d): %v - retrying...",
				i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		} else {
			log.Fatalf("Error initializing database after %d attempts: %v", maxRetries, err)
		}
	}
	return store
}

func handleRegisterCommand(args map[string]string, dbPath string, debugMode bool) {
	folderPath := args["folder"]

	// Verify folder path exists and is accessible
	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Fatalf("Folder path does not exist: %s", folderPath)
		} else {
			log.Fatalf("Cannot access folder path: %s (%v)", folderPath, err)
		}
	}
	if !folderInfo.IsDir() {
		log.Fatalf("Path is not a directory: %s", folderPath)
	}

	sourcePrefix := args["prefix"]

	forceRewrite := false
	if _, ok := args["force"]; ok {
		forceRewrite = true
	}

	startTime := time.Now()

	store := openStore(dbPath)
	defer store.Close()

	options := ingest.Options{
		FolderPath:   folderPath,
		SourcePrefix: sourcePrefix,
		ForceRewrite: forceRewrite,
		DebugMode:    debugMode,
		Workers:      signalhandler.GetOptimalProcs(),
	}

	if err := ingest.ScanAndStoreFolder(context.Background(), store, options); err != nil {
		log.Fatalf("Error registering folder: %v", err)
	}

	duration := time.Since(startTime)
	fmt.Printf("\nRegistration completed successfully!\n")
	fmt.Printf("Total execution time: %v\n", duration)
	fmt.Printf("Database: %s\n", dbPath)

	// Print summary statistics if available
	stats, err := store.Stats(context.Background(), sourcePrefix)
	if err == nil && stats != nil {
		fmt.Printf("\nSummary:\n")
		fmt.Printf("- Total artworks registered: %d\n", stats.TotalArtworks)
		fmt.Printf("- Unique fingerprints: %d\n", stats.UniqueFingerprints)
		fmt.Printf("- Anchored artworks: %d\n", stats.AnchoredArtworks)
	}
}

func handleVerifyCommand(args map[string]string, cfg *config.Config, dbPath string, debugMode bool) {
	queryPath := args["image"]

	// Verify paths exist
	if _, err := os.Stat(queryPath); os.IsNotExist(err) {
		log.Fatalf("Query image does not exist: %s", queryPath)
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("Database does not exist: %s. Run register command first.", dbPath)
	}

	checkSimilarity := false
	if _, ok := args["similarity"]; ok {
		checkSimilarity = true
	}

	startTime := time.Now()

	store := openStore(dbPath)
	defer store.Close()

	buf, err := os.ReadFile(queryPath)
	if err != nil {
		log.Fatalf("Cannot read query image: %v", err)
	}

	hash, err := contenthash.Compute(buf)
	if err != nil {
		log.Fatalf("Cannot hash query image: %v", err)
	}

	request := types.VerificationRequest{
		ContentHash:           hash,
		CheckVisualSimilarity: checkSimilarity,
	}

	if checkSimilarity {
		decoders := decoder.NewRegistry()
		raster, err := decoders.LoadFile(queryPath)
		if err != nil {
			log.Fatalf("Cannot decode query image: %v", err)
		}
		fp, err := fingerprint.Extract(raster)
		if err != nil {
			log.Fatalf("Cannot fingerprint query image: %v", err)
		}
		wire, err := fingerprint.Serialize(fp)
		if err != nil {
			log.Fatalf("Cannot encode fingerprint: %v", err)
		}
		request.SerializedFingerprint = wire
	}

	verifier := verification.NewVerifier(store, verification.Options{
		Compare:        cfg.CompareOptions(),
		CandidateLimit: cfg.Similarity.CandidateLimit,
		TopMatches:     cfg.Similarity.TopMatches,
	})

	fmt.Println("Verifying artwork...")
	if debugMode {
		logging.DebugLog("Verifying %s (hash %s, similarity=%v)", queryPath, hash, checkSimilarity)
	}

	response := verifier.Verify(context.Background(), request)
	printVerificationResult(response)

	duration := time.Since(startTime)
	fmt.Printf("\nTotal verification time: %v\n", duration)
}

// printVerificationResult renders the response for the terminal.
func printVerificationResult(response types.VerificationResponse) {
	if response.Verified {
		fmt.Printf("\nVerified: yes (method: %s, confidence: %.2f)\n",
			response.VerificationMethod, response.Confidence)
	} else {
		fmt.Printf("\nVerified: no (method: %s)\n", response.VerificationMethod)
	}

	if len(response.Matches) == 0 {
		return
	}

	fmt.Println("\nTop Matches:")
	for i, match := range response.Matches {
		fmt.Printf("%d. Content hash: %s\n", i+1, match.ContentHash)
		fmt.Printf("   Match type: %s\n", match.MatchType)
		fmt.Printf("   Confidence: %.2f (hash %.2f, color %.2f, structural %.2f)\n",
			match.Confidence,
			match.Details.HashSimilarity,
			match.Details.ColorSimilarity,
			match.Details.StructuralSimilarity)
	}
}

func handleAnchorCommand(dbPath string, debugMode bool) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("Database does not exist: %s. Run register command first.", dbPath)
	}

	store := openStore(dbPath)
	defer store.Close()

	ctx := context.Background()

	hashes, err := store.ListUnanchored(ctx, 1024)
	if err != nil {
		log.Fatalf("Error listing pending artworks: %v", err)
	}
	if len(hashes) == 0 {
		fmt.Println("Nothing to anchor.")
		return
	}

	batch, err := anchor.BuildBatch(hashes)
	if err != nil {
		log.Fatalf("Error building anchor batch: %v", err)
	}

	if err := store.StoreAnchorBatch(ctx, *batch); err != nil {
		log.Fatalf("Error storing anchor batch: %v", err)
	}

	if debugMode {
		logging.DebugLog("Anchored batch %s covering %d artworks", batch.BatchID, len(batch.Items))
	}

	fmt.Printf("Anchored %d artworks.\n", len(batch.Items))
	fmt.Printf("Batch ID: %s\n", batch.BatchID)
	fmt.Printf("Merkle root: %s\n", batch.Root)
}

func handleServeCommand(args map[string]string, cfg *config.Config, dbPath string) {
	listenAddr := cfg.ListenAddr
	if addr, ok := args["listen"]; ok && addr != "" {
		listenAddr = addr
	}

	store := openStore(dbPath)
	defer store.Close()

	verifier := verification.NewVerifier(store, verification.Options{
		Compare:        cfg.CompareOptions(),
		CandidateLimit: cfg.Similarity.CandidateLimit,
		TopMatches:     cfg.Similarity.TopMatches,
	})
	nonces := nonce.NewStore(cfg.NonceTTL)

	srv := server.New(store, verifier, nonces)

	fmt.Printf("Serving on %s (database: %s)\n", listenAddr, dbPath)
	if err := http.ListenAndServe(listenAddr, srv.Router()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
