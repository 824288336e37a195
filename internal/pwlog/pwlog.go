// Package pwlog provides the process-wide debug logger described in
// SPEC_FULL.md's ambient logging section, grounded on
// internal/runtime/server/logging.go's debug-discard-by-default pattern:
// important messages always reach stderr via the loggers passed explicitly
// to each component, while fine-grained debug output is discarded unless
// -d is passed on the command line.
package pwlog

import (
	"io"
	"log"
	"os"
)

// Debug is discarded by default; SetVerbose(true) routes it to stderr.
var Debug = log.New(io.Discard, "debug: ", log.LstdFlags)

// SetVerbose toggles whether Debug output reaches stderr.
func SetVerbose(enable bool) {
	if enable {
		Debug.SetOutput(os.Stderr)
	} else {
		Debug.SetOutput(io.Discard)
	}
}
