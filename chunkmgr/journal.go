package chunkmgr

import "github.com/nexoedge-go/proxy/metadata"

// preJournal records a pre write/delete journal entry for one chunk
// position before the corresponding request is dispatched (spec §3
// Invariant 6, §4.4.1 step 3).
func (m *Manager) preJournal(namespaceID byte, name string, version int32, fuuid string, chunkID, containerID int, isWrite bool) error {
	return m.journal.AppendJournal(metadata.JournalEntry{
		NamespaceID: namespaceID,
		Name:        name,
		Version:     version,
		ChunkID:     chunkID,
		ContainerID: containerID,
		IsWrite:     isWrite,
		IsPre:       true,
	})
}

// commitJournal removes the pre entry once the dispatched request has
// been confirmed successful (spec §3 Invariant 6: "commit ... removes
// it"). fuuid is accepted for symmetry with preJournal even though the
// journal key itself does not carry it (spec §3 Journal tuple has no
// fuuid field; the chunk identity is implied by (name, version,
// chunk_id) since only one write is ever in flight per locked object).
func (m *Manager) commitJournal(namespaceID byte, name string, version int32, fuuid string, chunkID, containerID int, isWrite bool) error {
	return m.journal.RemoveJournal(metadata.JournalEntry{
		NamespaceID: namespaceID,
		Name:        name,
		Version:     version,
		ChunkID:     chunkID,
		ContainerID: containerID,
		IsWrite:     isWrite,
		IsPre:       true,
	})
}
