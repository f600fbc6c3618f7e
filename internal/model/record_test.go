package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntityDefaults(t *testing.T) {
	rec := NewEntity("e1", "restaurant", "Noma", map[string]any{"city": "Copenhagen"})
	assert.Equal(t, CollectionEntities, rec.Collection)
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, int64(0), rec.ServerVersion)
	assert.Equal(t, SyncStatePending, rec.SyncState)
	assert.True(t, rec.NeverSynced())
	assert.False(t, rec.InSync())
}

func TestNewCurationDefaults(t *testing.T) {
	rec := NewCuration("c1", "e1", "curator-9", map[string]any{"note": "try the tasting menu"})
	assert.Equal(t, CollectionCurations, rec.Collection)
	assert.Equal(t, "e1", rec.EntityID)
	assert.Equal(t, "curator-9", rec.CuratorID)
	assert.Equal(t, SyncStatePending, rec.SyncState)
}

func TestEqualPayload(t *testing.T) {
	base := func() *Record {
		return NewEntity("e1", "restaurant", "Noma", map[string]any{"stars": 3, "city": "Copenhagen"})
	}

	t.Run("identical content", func(t *testing.T) {
		assert.True(t, base().EqualPayload(base()))
	})

	t.Run("version and sync state are ignored", func(t *testing.T) {
		other := base()
		other.Version = 7
		other.ServerVersion = 7
		other.SyncState = SyncStateSynced
		assert.True(t, base().EqualPayload(other))
	})

	t.Run("numbers compare after a wire hop", func(t *testing.T) {
		// A payload that crossed JSON comes back with float64 numbers.
		other := base()
		other.Payload = map[string]any{"stars": float64(3), "city": "Copenhagen"}
		assert.True(t, base().EqualPayload(other))
	})

	t.Run("differing name", func(t *testing.T) {
		other := base()
		other.Name = "Renamed"
		assert.False(t, base().EqualPayload(other))
	})

	t.Run("differing payload value", func(t *testing.T) {
		other := base()
		other.Payload = map[string]any{"stars": 2, "city": "Copenhagen"}
		assert.False(t, base().EqualPayload(other))
	})

	t.Run("tombstone flag matters", func(t *testing.T) {
		other := base()
		other.Deleted = true
		assert.False(t, base().EqualPayload(other))
	})

	t.Run("status matters", func(t *testing.T) {
		other := base()
		other.Status = StatusInactive
		assert.False(t, base().EqualPayload(other))
	})

	t.Run("empty and nil payloads are equal", func(t *testing.T) {
		a := NewEntity("e1", "restaurant", "X", nil)
		b := NewEntity("e1", "restaurant", "X", map[string]any{})
		assert.True(t, a.EqualPayload(b))
	})

	t.Run("nil records", func(t *testing.T) {
		var nilRec *Record
		assert.True(t, nilRec.EqualPayload(nil))
		assert.False(t, nilRec.EqualPayload(base()))
		assert.False(t, base().EqualPayload(nil))
	})
}

func TestClone(t *testing.T) {
	rec := NewEntity("e1", "restaurant", "Noma", map[string]any{"city": "Copenhagen"})
	rec.RemoteSnapshot = NewEntity("e1", "restaurant", "Server Copy", map[string]any{"city": "Lisbon"})

	clone := rec.Clone()
	require.NotSame(t, rec, clone)
	assert.True(t, rec.EqualPayload(clone))

	// Mutating the clone leaves the original untouched.
	clone.Payload["city"] = "Paris"
	clone.RemoteSnapshot.Name = "Changed"
	assert.Equal(t, "Copenhagen", rec.Payload["city"])
	assert.Equal(t, "Server Copy", rec.RemoteSnapshot.Name)
}

func TestCloneNil(t *testing.T) {
	var rec *Record
	assert.Nil(t, rec.Clone())
}

func TestCollectionValid(t *testing.T) {
	assert.True(t, CollectionEntities.Valid())
	assert.True(t, CollectionCurations.Valid())
	assert.False(t, Collection("menus").Valid())
	assert.False(t, Collection("").Valid())
}
