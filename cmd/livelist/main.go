// livelist - live, incrementally reconciled list views over record services
package main

import (
	"os"

	"github.com/rescale/livelist/internal/cli"
	"github.com/rescale/livelist/internal/version"
)

func main() {
	// internal/version is the canonical source; cli reads its own copy
	cli.Version = version.Version
	cli.BuildTime = version.BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
