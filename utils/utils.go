package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Commands understood by the CLI.
var knownCommands = map[string]bool{
	"register": true,
	"verify":   true,
	"anchor":   true,
	"serve":    true,
}

// ParseArguments converts command-line arguments into a map of flags and values
func ParseArguments() map[string]string {
	args := make(map[string]string)

	// First, identify the command
	command := ""
	commandIndex := -1
	for i := 1; i < len(os.Args); i++ {
		if knownCommands[os.Args[i]] {
			command = os.Args[i]
			commandIndex = i
			break
		}
	}

	if command != "" {
		args["command"] = command
	}

	// Process all arguments, skipping the command
	for i := 1; i < len(os.Args); i++ {
		if i == commandIndex {
			continue
		}

		arg := os.Args[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flagName := strings.TrimPrefix(parts[0], "--")
			args[flagName] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value)
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// Check if this is a boolean flag (no value)
			if i+1 >= len(os.Args) || strings.HasPrefix(os.Args[i+1], "--") {
				args[flagName] = "true"
			} else {
				// The next argument is the value
				args[flagName] = os.Args[i+1]
				i++ // Skip the value in the next iteration
			}
		}
	}

	return args
}

// GetDefaultDatabasePath returns the default path for the database file
func GetDefaultDatabasePath() string {
	// Get the executable path
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return "artworks.db"
	}

	// Get the directory containing the executable
	exeDir := filepath.Dir(exePath)

	// Return the default database path in the same directory
	return filepath.Join(exeDir, "artworks.db")
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s register --folder=PATH [--database=PATH] [--prefix=NAME] [--force] [--debug] [--logfile=PATH]\n", os.Args[0])
	fmt.Printf("  %s verify --image=PATH [--database=PATH] [--similarity] [--debug] [--logfile=PATH]\n", os.Args[0])
	fmt.Printf("  %s anchor [--database=PATH] [--debug] [--logfile=PATH]\n", os.Args[0])
	fmt.Printf("  %s serve [--database=PATH] [--listen=ADDR] [--debug] [--logfile=PATH]\n", os.Args[0])
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --folder      : Path to folder containing artworks to register\n")
	fmt.Printf("  --image       : Path to query image for verification\n")
	fmt.Printf("  --database    : Path to database file (default: %s)\n", GetDefaultDatabasePath())
	fmt.Printf("  --prefix      : Source prefix recorded with registered artworks\n")
	fmt.Printf("  --force       : Force rewrite existing entries during registration\n")
	fmt.Printf("  --similarity  : Run the visual similarity tier during verification\n")
	fmt.Printf("  --listen      : Listen address for the HTTP server (default from config)\n")
	fmt.Printf("  --config      : Path to YAML config file (default: artregistry.yaml)\n")
	fmt.Printf("  --debug       : Enable debug mode (logs detailed information)\n")
	fmt.Printf("  --logfile     : Specify custom log file path (default: artregistry.log)\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s register --folder=/path/to/artworks --prefix=Portfolio2026 --debug\n", os.Args[0])
	fmt.Printf("  %s verify --image=/path/to/query.jpg --similarity\n", os.Args[0])
}
