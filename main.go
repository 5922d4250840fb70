package main

import (
	"github.com/jwhitley/stacks/internal/config"
	"github.com/jwhitley/stacks/internal/entrypoint"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	cfg := config.NewConfig()
	entrypoint.Run(cfg, Version)
}
