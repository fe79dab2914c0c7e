package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionRaw_FirstOccurrenceWins(t *testing.T) {
	batch := []*RawTransaction{
		{ID: "r1", Fingerprint: "aaa"},
		{ID: "r2", Fingerprint: "bbb"},
		{ID: "r3", Fingerprint: "aaa"},
		{ID: "r4", Fingerprint: "ccc"},
		{ID: "r5", Fingerprint: "aaa"},
	}

	part := PartitionRaw(batch)

	require.Len(t, part.Unique, 3)
	assert.Equal(t, "r1", part.Unique[0].ID)
	assert.Equal(t, "r2", part.Unique[1].ID)
	assert.Equal(t, "r4", part.Unique[2].ID)

	require.Len(t, part.Duplicates, 2)
	assert.Equal(t, "r3", part.Duplicates[0].Item.ID)
	assert.Equal(t, "r1", part.Duplicates[0].Of.ID)
	assert.Equal(t, 2, part.Duplicates[0].Index)
	assert.Equal(t, "r5", part.Duplicates[1].Item.ID)
	assert.Equal(t, "r1", part.Duplicates[1].Of.ID)
}

func TestPartitionRaw_Completeness(t *testing.T) {
	batch := []*RawTransaction{
		{ID: "a", Fingerprint: "x"},
		{ID: "b", Fingerprint: "y"},
		{ID: "c", Fingerprint: "x"},
		{ID: "d", Fingerprint: "z"},
		{ID: "e", Fingerprint: "y"},
		{ID: "f", Fingerprint: "x"},
	}

	part := PartitionRaw(batch)

	seen := map[string]int{}
	uniqueByFP := map[string]int{}
	for _, u := range part.Unique {
		seen[u.ID]++
		uniqueByFP[u.Fingerprint]++
	}
	for _, d := range part.Duplicates {
		seen[d.Item.ID]++
		assert.Equal(t, d.Of.Fingerprint, d.Item.Fingerprint)
	}

	assert.Len(t, seen, len(batch))
	for id, n := range seen {
		assert.Equalf(t, 1, n, "item %s appears %d times", id, n)
	}
	for fp, n := range uniqueByFP {
		assert.Equalf(t, 1, n, "fingerprint %s has %d unique representatives", fp, n)
	}
	for _, d := range part.Duplicates {
		assert.Equal(t, 1, uniqueByFP[d.Item.Fingerprint])
	}
}

func TestPartitionByFingerprint_EmptyKeysNeverCollide(t *testing.T) {
	batch := []*Transaction{{ID: "1"}, {ID: "2"}}

	part := PartitionByFingerprint(batch, func(t *Transaction) string { return t.Fingerprint })

	assert.Len(t, part.Unique, 2)
	assert.Empty(t, part.Duplicates)
}

func TestPartitionRaw_Empty(t *testing.T) {
	part := PartitionRaw(nil)

	assert.Empty(t, part.Unique)
	assert.Empty(t, part.Duplicates)
}
