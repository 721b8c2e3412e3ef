package config

import (
	"flag"
	"os"

	"github.com/m1tka051209/marketgram-client/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the backend REST API (default from Config)
//	-d string   path of the local SQLite database (default from Config)
//	-s int      upload chunk size in bytes (default from Config)
//
// Note: The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "base URL of the backend REST API")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local database file")
	fs.Int64Var(&cfg.ChunkSize, "s", cfg.ChunkSize, "upload chunk size (in bytes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
