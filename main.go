package main

import (
	"os"

	"github.com/kilnworks/kiln/core/cli"
	"github.com/kilnworks/kiln/core/cli/cmd"
)

// Version and Commit can be set at build time using -ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

func init() {
	cmd.SetBuildInfo(Version, Commit)
}

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
