package gist

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// FileData calls them on hot paths.
type Hooks interface {
	// A stored entry could not be used and will be recomputed.
	// reason ∈ {"corrupt", "value_decode"}
	EntryRejected(storageKey, reason string)

	// The provider failed on read; the call fell back to the calculator.
	StorageReadError(storageKey string, err error)

	// Encoding or persisting a computed value failed; the value was still returned.
	StorageWriteError(storageKey string, err error)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// The reindex generation could not be read; caching was bypassed.
	ReindexSnapshotError(err error)

	// The reindex generation was bumped to gen.
	Reindexed(gen int32)

	// A gist (id, version) pair was registered more than once.
	DuplicateGist(id string, version int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) EntryRejected(string, string)    {}
func (NopHooks) StorageReadError(string, error)  {}
func (NopHooks) StorageWriteError(string, error) {}
func (NopHooks) ProviderSetRejected(string)      {}
func (NopHooks) ReindexSnapshotError(error)      {}
func (NopHooks) Reindexed(int32)                 {}
func (NopHooks) DuplicateGist(string, int)       {}
