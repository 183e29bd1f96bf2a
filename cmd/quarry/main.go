package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// stdout is reserved for the MCP protocol in serve mode
	log.SetOutput(os.Stderr)

	// A missing .env is not an error; the environment wins over the file
	_ = godotenv.Load()

	Execute()
}
