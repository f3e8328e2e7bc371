// Package env loads .env files for local development. In production the
// environment comes from the host and no files exist.
package env

import (
	"log/slog"

	"github.com/joho/godotenv"
)

// candidatePaths are tried in order. The working directory comes first so a
// local override wins; the repo root covers running from services/agent/.
// godotenv never overwrites variables that are already set.
var candidatePaths = []string{".env", "../../.env"}

// Load reads each candidate .env file that exists. Missing files are normal
// and skipped silently.
func Load() {
	var loaded []string
	for _, path := range candidatePaths {
		if err := godotenv.Load(path); err == nil {
			loaded = append(loaded, path)
		}
	}
	slog.Debug("env_files_loaded", "files", loaded)
}
