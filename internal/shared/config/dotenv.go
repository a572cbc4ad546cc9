package config

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads the given dotenv files in order, skipping missing ones.
// Process environment wins over file values, and earlier files win over later ones.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("config: skip env file path=%s err=%v", path, err)
		}
	}
}
