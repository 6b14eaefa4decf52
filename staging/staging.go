// Package staging specifies the capability set a local write-back cache
// must expose to the background writeback worker (spec §1 "The staging
// tier ... only its capability set is specified", §4.5 "Staging
// writeback"). The tier itself - a filesystem cache - is an external
// collaborator; this package is only the contract.
package staging

import "time"

// Entry describes one object version sitting in the staging tier
// waiting to be written back to the erasure-coded backend.
type Entry struct {
	NamespaceID byte
	Name        string
	Version     int32

	StagedTime time.Time
	ModifyTime time.Time
}

// Store is the capability set spec §4.5's writeback worker needs: list
// the pending-writeback backlog, read one entry's staged bytes, and
// clear its pin once the backend write lands.
type Store interface {
	// PendingWriteback returns the current pending-writeback backlog,
	// oldest first.
	PendingWriteback() ([]Entry, error)
	// ReadStaged returns the full staged payload for one entry.
	ReadStaged(namespaceID byte, name string, version int32) ([]byte, error)
	// ClearPin releases the staging tier's hold on one entry once its
	// bytes have been durably written to the backend.
	ClearPin(namespaceID byte, name string, version int32) error
}
