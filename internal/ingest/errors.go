package ingest

import "fmt"

// errFatalErrorRate is the abort condition for a run whose per-listing
// failure fraction crossed the configured ceiling. The run is logged
// failed and tombstoning is skipped for the cycle.
func errFatalErrorRate(errored, found int) error {
	return fmt.Errorf("aborting run: %d of %d listings failed, error rate over threshold", errored, found)
}
