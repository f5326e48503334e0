package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

func main() {
	loadEnvFiles()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "artifyd:", err)
		os.Exit(1)
	}
}

// envFiles lists .env files read before flags and config, in order. Values
// already present in the environment are never overwritten.
func envFiles() []string {
	files := []string{".env", "artifyd.env"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".config", "artifyd.env"))
	}
	return files
}

func loadEnvFiles() {
	for _, f := range envFiles() {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			fmt.Fprintf(os.Stderr, "artifyd: load %s: %v\n", f, err)
		}
	}
}
