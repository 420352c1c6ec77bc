package main

import (
	"github.com/joho/godotenv"
)

func main() {
	// Load .env if present. Existing environment variables win.
	_ = godotenv.Load()

	Execute()
}
