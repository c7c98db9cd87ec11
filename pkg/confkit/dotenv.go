package confkit

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce loads .env files once per process. NO_DOTENV=1 disables it,
// ENV_FILE points at an explicit file and DOTENV_OVERLOAD=1 lets the file win
// over variables already set.
func LoadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	load := godotenv.Load
	if os.Getenv("DOTENV_OVERLOAD") == "1" {
		load = godotenv.Overload
	}
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		_ = load(envFile)
		return
	}
	wd, err := os.Getwd()
	if err != nil {
		_ = load(".env")
		return
	}
	// Nearest file first; godotenv.Load never overrides, so closer files win.
	dir := wd
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, ".env")
		if fileExists(candidate) {
			_ = load(candidate)
		}
		if fileExists(filepath.Join(dir, "go.mod")) || fileExists(filepath.Join(dir, ".git")) {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
