// Command culturedb-mcp serves the culture-media catalogue to MCP clients
// over stdio. All tools are read-only.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/vthunder/culturedb/internal/app"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/mcp"
	"github.com/vthunder/culturedb/internal/mcp/tools"
	"github.com/vthunder/culturedb/internal/profiling"
)

const version = "0.3.0"

func main() {
	// Log to stderr so stdout is clean for JSON-RPC
	logging.SetOutput(os.Stderr)
	log.SetPrefix("[culturedb-mcp] ")

	maxRows := flag.Int("max-rows", 200, "cap on rows returned by list tools")
	common := app.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := common.Load()
	if err != nil {
		log.Fatal(err)
	}
	cfg.MetricsFile = ""

	rt, err := app.Open(context.Background(), cfg, app.Options{ProfileLevel: profiling.LevelOff})
	if err != nil {
		log.Fatalf("Setup failed: %v", err)
	}
	defer rt.Close()

	server := mcp.NewServer("culturedb", version)
	tools.RegisterAll(server, &tools.Dependencies{
		DB:              rt.DB,
		EmbeddingMethod: cfg.Features.Method,
		MaxRows:         *maxRows,
	})

	if err := server.ServeStdio(); err != nil {
		rt.Close()
		log.Fatalf("Server error: %v", err)
	}
}
