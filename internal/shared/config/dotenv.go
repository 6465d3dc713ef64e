package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// envFiles lists the dotenv files Load reads. ENV_FILE names one explicit
// file; otherwise the repo-local defaults are tried.
func envFiles() []string {
	if explicit := strings.TrimSpace(os.Getenv("ENV_FILE")); explicit != "" {
		return []string{explicit}
	}
	return []string{".env", "cmd/.env"}
}

// loadEnvFiles loads KEY=VALUE pairs from paths. Variables already set in
// the process environment win, and missing files are skipped.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		err := godotenv.Load(path)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			if os.Getenv("ENV_FILE") == path {
				log.Printf("config: ENV_FILE %s not found", path)
			}
		default:
			log.Printf("config: skip %s: %v", path, err)
		}
	}
}
