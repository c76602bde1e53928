// Copyright 2024-2026 Aiku AI

package relay

import "go.mau.fi/util/exsync"

// MirrorMap records the correspondence between an original source message and
// its mirrored copy at the destination, so later edits and replies can be
// applied to the correct mirrored message. Entries are never evicted; the map
// grows for the lifetime of the process, which is an accepted trade-off for a
// single-process service.
type MirrorMap struct {
	entries *exsync.Map[MessageRef, int64]
}

// NewMirrorMap creates an empty mirror map safe for concurrent use by all
// subscriptions.
func NewMirrorMap() *MirrorMap {
	return &MirrorMap{entries: exsync.NewMap[MessageRef, int64]()}
}

// Put records that destMessageID mirrors the source message ref.
func (m *MirrorMap) Put(ref MessageRef, destMessageID int64) {
	m.entries.Set(ref, destMessageID)
}

// Get returns the mirrored message id for ref, if one was recorded.
func (m *MirrorMap) Get(ref MessageRef) (int64, bool) {
	return m.entries.Get(ref)
}
