package main

import (
	"fmt"
	"os"

	"github.com/wanderlist/imagebackfill/cmd"
	"github.com/wanderlist/imagebackfill/internal/app"
	"github.com/wanderlist/imagebackfill/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx := app.NewContext(buildinfo.NewContext(version, buildDate))

	rootCmd := cmd.RootCommand(ctx)
	err := rootCmd.Execute()
	ctx.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
