package store

// Stores is the top-level container for all storage backends.
// Leads is nil when lead logging is disabled.
type Stores struct {
	Sessions SessionStore
	Dedup    DedupStore
	Leads    LeadStore

	// Close releases backend resources (database handles).
	Close func() error
}
