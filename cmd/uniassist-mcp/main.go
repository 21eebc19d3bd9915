package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("UNIASSIST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("UNIASSIST_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "UNIASSIST_API_KEY not set, calling the API without a key")
	}

	s := server.NewMCPServer(
		"uniassist",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	registerTools(s, newAPIClient(apiURL, apiKey, 600*time.Second), 2*time.Second)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
