package inventory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLots() []Lot {
	return []Lot{
		{ItemType: 'P', ItemID: "3001", ColorID: 5, Condition: ConditionNew, Quantity: 10, Price: 0.10, ForeignIDs: [2]int64{100, 0}},
		{ItemType: 'P', ItemID: "3002", ColorID: 11, Condition: ConditionUsed, Quantity: 4, Price: 0.25, ForeignIDs: [2]int64{101, 9001}},
		{ItemType: 'S', ItemID: "6020-1", Condition: ConditionUsed, Quantity: 1, Price: 35, Grade: GradeComplete},
	}
}

func TestInventory_AddAssignsLocalIDs(t *testing.T) {
	inv := New(0)
	i := inv.Add(Lot{ItemID: "a"})
	j := inv.Add(Lot{ItemID: "b", LocalID: 10})
	k := inv.Add(Lot{ItemID: "c"})

	assert.Equal(t, int64(1), inv.Get(i).LocalID)
	assert.Equal(t, int64(10), inv.Get(j).LocalID)
	assert.Equal(t, int64(11), inv.Get(k).LocalID)
	assert.Equal(t, 1, inv.FindByLocalID(10))
	assert.Equal(t, -1, inv.FindByLocalID(99))
}

func TestInventory_Totals(t *testing.T) {
	inv := FromLots(sampleLots())
	tot := inv.Totals()
	assert.Equal(t, 3, tot.Lots)
	assert.Equal(t, 15, tot.Units)
	assert.InDelta(t, 37.0, tot.Value, 1e-9)

	inv.Tombstone(2)
	inv.Tombstone(2)
	assert.Equal(t, 2, inv.Totals().Lots)
	assert.Equal(t, 14, inv.Totals().Units)

	inv.Get(0).Quantity = 3
	inv.Recount()
	assert.Equal(t, 7, inv.Totals().Units)
}

func TestInventory_TombstoneAndCompact(t *testing.T) {
	inv := FromLots(sampleLots())
	inv.Tombstone(0)

	assert.Equal(t, 3, inv.Len(), "tombstones keep their slot")
	assert.Equal(t, -1, inv.FindByForeignID(Primary, 100))
	assert.Equal(t, 1, inv.FindByForeignID(Primary, 101))

	removed := inv.Compact()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, inv.Len())
	assert.Equal(t, "3002", inv.Get(0).ItemID)
}

func TestInventory_FindByForeignIDIgnoresUnset(t *testing.T) {
	inv := FromLots(sampleLots())
	assert.Equal(t, -1, inv.FindByForeignID(Secondary, 0))
	assert.Equal(t, 1, inv.FindByForeignID(Secondary, 9001))
}

func TestInventory_CloneIsDeep(t *testing.T) {
	inv := FromLots(sampleLots())
	c := inv.Clone()
	c.Get(0).Quantity = 99
	c.Add(Lot{ItemID: "new"})

	assert.Equal(t, 10, inv.Get(0).Quantity)
	assert.Equal(t, 3, inv.Len())
}

func TestFile_WriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.json")

	inv := FromLots(sampleLots())
	inv.Get(1).Tiers[0] = Tier{Qty: 10, Price: 0.2}
	require.NoError(t, inv.WriteFile(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, inv.Lots(), got.Lots())
	assert.Equal(t, inv.Totals(), got.Totals())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	lots := doc["lots"].([]any)
	assert.Equal(t, "P", lots[0].(map[string]any)["item_type"])
}

func TestFile_LoadMissing(t *testing.T) {
	inv, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Zero(t, inv.Len())
}

func TestFile_RejectsNewerVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version": 99, "lots": []}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParseService(t *testing.T) {
	tests := []struct {
		in   string
		want Service
		ok   bool
	}{
		{"primary", Primary, true},
		{"S", Secondary, true},
		{" secondary ", Secondary, true},
		{"bogus", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseService(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, Secondary, Primary.Other())
	assert.Equal(t, "secondary", Secondary.String())
}
