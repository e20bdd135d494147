// Package main is the entry point for the registry engine.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/bottany/registry-engine/cmd/registry-engine/app"
	"github.com/bottany/registry-engine/internal/governance"
)

// Exit codes. A governance block is distinguishable from generic
// failures so supervisors can tell "fix the data" from "fix the deploy".
const (
	exitFailure = 1
	exitBlocked = 2
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		var blocked *governance.BlockedError
		if errors.As(err, &blocked) {
			// Machine-parseable summary for the supervisor.
			if summary, jerr := json.Marshal(blocked); jerr == nil {
				fmt.Fprintln(os.Stderr, string(summary))
			}
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(exitBlocked)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitFailure)
	}
}
