// Tiercache is a namespaced two-tier cache service: a per-process memory
// tier in front of a shared durable store, with an HTTP admin surface.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"
)

// version is set with -ldflags "-X main.version=..." in release builds.
var version = ""

func main() {
	configPath := flag.String("config", "", "path to YAML config; empty runs on defaults and TIERCACHE_* variables")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if version == "" {
		version = buildVersion()
	}
	if *showVersion {
		fmt.Println("tiercache", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tiercache: %v\n", err)
		os.Exit(1)
	}
}

// buildVersion falls back to the module version stamped by go install.
func buildVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "dev"
}
