// Package main is the entry point for the hum2midi API server
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/james-see/hum2midi/pkg/api"
	"github.com/james-see/hum2midi/pkg/logging"
	"github.com/james-see/hum2midi/pkg/transcriber"
)

func main() {
	port := flag.Int("port", 8080, "Server port")
	verbose := flag.Bool("verbose", false, "Log pipeline details for every request")
	flag.Parse()

	logger := logging.Must(*verbose)
	defer func() { _ = logger.Sync() }()

	fmt.Printf("Starting hum2midi API server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	if err := api.StartServer(*port, transcriber.DefaultSettings(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
