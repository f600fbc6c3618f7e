// Package model defines the versioned record types shared by the local
// store, the sync engine, and the server API: entities (restaurants and
// similar real-world subjects) and curations (curator commentary attached
// to an entity).
package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Collection names a record kind. It selects the local table, the remote
// path segment, and the pull-cursor key.
type Collection string

const (
	CollectionEntities  Collection = "entities"
	CollectionCurations Collection = "curations"
)

// Collections lists all known collections in pull order.
func Collections() []Collection {
	return []Collection{CollectionEntities, CollectionCurations}
}

func (c Collection) Valid() bool {
	return c == CollectionEntities || c == CollectionCurations
}

// SyncState describes where a record stands in the reconciliation cycle.
type SyncState string

const (
	// SyncStatePending marks local changes not yet acknowledged by the server.
	SyncStatePending SyncState = "pending"
	// SyncStateSynced marks records whose local and server versions match.
	SyncStateSynced SyncState = "synced"
	// SyncStateConflict marks records whose push was rejected and awaits an
	// explicit resolution.
	SyncStateConflict SyncState = "conflict"
	// SyncStateError marks records rejected permanently (e.g. validation);
	// they are not retried without user action.
	SyncStateError SyncState = "error"
)

// RecordStatus is the domain lifecycle status, independent of sync state.
type RecordStatus string

const (
	StatusActive   RecordStatus = "active"
	StatusInactive RecordStatus = "inactive"
	StatusDraft    RecordStatus = "draft"
)

// Record is a version-tracked entity or curation.
//
// The wire representation (JSON tags) is shared by the client's remote
// calls and the server's handlers. Fields tagged "-" are client-local
// bookkeeping and never leave the device.
type Record struct {
	ID         string     `json:"id"`
	Collection Collection `json:"-"`

	// Entity fields.
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	ExternalRef string `json:"external_ref,omitempty"`

	// Curation fields.
	EntityID  string `json:"entity_id,omitempty"`
	CuratorID string `json:"curator_id,omitempty"`

	// Payload holds free-form attributes (entity) or content (curation).
	Payload map[string]any `json:"payload,omitempty"`

	Status  RecordStatus `json:"status"`
	Deleted bool         `json:"deleted"`
	Version int64        `json:"version"`

	// CreatedAt/UpdatedAt are server-authoritative once synced.
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	// ServerVersion is the last version acknowledged by the server
	// (0 for a record that has never synced).
	ServerVersion int64 `json:"-"`

	SyncState SyncState `json:"-"`

	// SyncErrorDetail carries the server-supplied reason when
	// SyncState == SyncStateError.
	SyncErrorDetail string `json:"-"`

	// RemoteSnapshot is retained while SyncState == SyncStateConflict.
	// Nil means the server side no longer exists.
	RemoteSnapshot *Record `json:"-"`
}

// NewEntity builds a local-only entity record. It starts at version 1 with
// no acknowledged server version, so it is pending by construction.
func NewEntity(id, entityType, name string, payload map[string]any) *Record {
	return &Record{
		ID:            id,
		Collection:    CollectionEntities,
		Type:          entityType,
		Name:          name,
		Payload:       payload,
		Status:        StatusActive,
		Version:       1,
		ServerVersion: 0,
		SyncState:     SyncStatePending,
	}
}

// NewCuration builds a local-only curation attached to entityID.
func NewCuration(id, entityID, curatorID string, content map[string]any) *Record {
	return &Record{
		ID:            id,
		Collection:    CollectionCurations,
		EntityID:      entityID,
		CuratorID:     curatorID,
		Payload:       content,
		Status:        StatusActive,
		Version:       1,
		ServerVersion: 0,
		SyncState:     SyncStatePending,
	}
}

// InSync reports whether the local version has been fully acknowledged.
func (r *Record) InSync() bool {
	return r.Version == r.ServerVersion
}

// NeverSynced reports whether the server has never accepted this record.
func (r *Record) NeverSynced() bool {
	return r.ServerVersion == 0
}

// Clone returns a deep copy of the record, including payload and snapshot.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Payload = clonePayload(r.Payload)
	out.RemoteSnapshot = r.RemoteSnapshot.Clone()
	return &out
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	// Round-trip through JSON: payloads are JSON documents by contract.
	raw, err := json.Marshal(p)
	if err != nil {
		out := make(map[string]any, len(p))
		for k, v := range p {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// EqualPayload reports whether two records carry the same user-visible
// content: domain fields, status, tombstone flag, and payload. Version and
// sync bookkeeping are ignored, which makes this the test for the
// "retried push whose ack was lost" no-op conflict.
func (r *Record) EqualPayload(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Type != other.Type ||
		r.Name != other.Name ||
		r.ExternalRef != other.ExternalRef ||
		r.EntityID != other.EntityID ||
		r.CuratorID != other.CuratorID ||
		r.Status != other.Status ||
		r.Deleted != other.Deleted {
		return false
	}
	return equalJSON(r.Payload, other.Payload)
}

func equalJSON(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ra, err := json.Marshal(normalize(a))
	if err != nil {
		return false
	}
	rb, err := json.Marshal(normalize(b))
	if err != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}

// normalize round-trips through JSON so that e.g. int and float64 values
// compare equal the way they would after a wire hop.
func normalize(m map[string]any) map[string]any {
	raw, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return m
	}
	return out
}
