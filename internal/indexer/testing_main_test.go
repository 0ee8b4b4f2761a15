package indexer

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain fails the package if a test leaves goroutines behind: parse
// workers, watcher loops or debounce timers.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
