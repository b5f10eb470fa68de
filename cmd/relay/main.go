// Command relay bridges a simulation's request/reply telemetry feed to live
// websocket observers.
package main

import (
	"fmt"
	"os"
	"time"
)

// build defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"
)

// SessionStartTime names the session's log file.
var SessionStartTime = time.Now()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
