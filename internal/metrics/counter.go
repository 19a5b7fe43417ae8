package metrics

import (
	"log"
	"sync"
)

var (
	globalStore *Store
	initOnce    sync.Once
	initErr     error
	dbPath      string
	disabled    bool
)

// Configure sets the database path used by Init and whether recording is
// enabled at all. An empty path selects DefaultDBPath. Call before Init.
func Configure(enabled bool, path string) {
	disabled = !enabled
	dbPath = path
}

// Init initializes the global metrics store.
// It is safe to call multiple times; subsequent calls are no-ops.
func Init() error {
	initOnce.Do(func() {
		if dbPath != "" {
			globalStore, initErr = NewStoreWithPath(dbPath)
		} else {
			globalStore, initErr = NewStore()
		}
		if initErr != nil {
			log.Printf("metrics: failed to initialize store: %v", initErr)
		}
	})
	return initErr
}

// RecordSearch increments the search count for surface and outcome.
// Failures are logged, never returned.
func RecordSearch(surface Surface, outcome Outcome) {
	if disabled {
		return
	}
	if globalStore == nil {
		if err := Init(); err != nil {
			log.Printf("metrics: cannot record search, store not initialized: %v", err)
			return
		}
	}

	if err := globalStore.Increment(surface, outcome); err != nil {
		log.Printf("metrics: failed to record %s search for %s: %v", outcome, surface, err)
	}
}

// GetStats returns cumulative search counts per surface.
// Returns nil if the store is not initialized.
func GetStats() map[Surface]Totals {
	if globalStore == nil {
		return nil
	}

	stats, err := globalStore.GetAllTotals()
	if err != nil {
		log.Printf("metrics: failed to get stats: %v", err)
		return nil
	}
	return stats
}

// Close closes the global metrics store.
func Close() error {
	if globalStore != nil {
		return globalStore.Close()
	}
	return nil
}

// GetStore returns the global store instance.
func GetStore() *Store {
	return globalStore
}

// SetStoreForTesting sets the global store instance for testing purposes.
func SetStoreForTesting(store *Store) {
	globalStore = store
}

// ResetForTesting resets the global state for testing purposes.
func ResetForTesting() {
	if globalStore != nil {
		_ = globalStore.Close()
	}
	globalStore = nil
	initOnce = sync.Once{}
	initErr = nil
	dbPath = ""
	disabled = false
}
