package domain

// ItemError is one failed item in a dispatch run.
type ItemError struct {
	ItemID  string
	Message string
}

// DispatchReport is the aggregate outcome of a dispatch run.
type DispatchReport struct {
	Synced int
	Failed int
	Errors []ItemError
}

// Processed returns the number of units the dispatcher attempted.
func (r DispatchReport) Processed() int {
	return r.Synced + r.Failed
}

// ChangeSet is the classification of candidate units against the ledger.
type ChangeSet struct {
	New       []SyncableUnit
	Changed   []SyncableUnit
	Unchanged []SyncableUnit

	// Exhausted holds failed units that reached the retry ceiling.
	Exhausted []SyncableUnit

	// Deferred holds failed units still inside their retry backoff.
	Deferred []SyncableUnit
}

// NeedsSync returns the number of units that should be dispatched.
func (c ChangeSet) NeedsSync() int {
	return len(c.New) + len(c.Changed)
}

// OwnerGaps lists the local units of an owner missing from a target.
type OwnerGaps struct {
	OwnerID string
	Known   int
	Local   int
	Missing []SyncableUnit
}
