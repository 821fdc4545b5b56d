// The main package for the harvester executable.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/JakeFAU/news-harvester/cmd"
)

// main loads an optional .env file and defers everything else to cobra.
func main() {
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
