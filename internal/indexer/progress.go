package indexer

// ProgressReporter provides callbacks for reporting indexing progress.
// Implementations can display progress bars, log messages, or remain silent.
// OnFileIndexed may be called from several goroutines.
type ProgressReporter interface {
	// OnDiscoveryStart is called when file discovery begins.
	OnDiscoveryStart()

	// OnDiscoveryComplete is called when file discovery finishes.
	OnDiscoveryComplete(files int)

	// OnFileIndexed is called after each file is parsed or reused.
	OnFileIndexed(path string)

	// OnComplete is called when indexing completes successfully.
	OnComplete(stats *IndexStats)
}

// NoOpProgressReporter is a progress reporter that does nothing.
// Used when progress reporting is disabled (e.g., --quiet flag).
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) OnDiscoveryStart()            {}
func (n *NoOpProgressReporter) OnDiscoveryComplete(int)      {}
func (n *NoOpProgressReporter) OnFileIndexed(string)         {}
func (n *NoOpProgressReporter) OnComplete(stats *IndexStats) {}
