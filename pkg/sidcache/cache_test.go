package sidcache

import (
	"bytes"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/trove-io/trove/pkg/types"
)

func sidN(n byte) types.SID {
	var u uuid.UUID
	u[len(u)-1] = n
	return u
}

func sortedSIDs(sids []types.SID) []types.SID {
	out := append([]types.SID(nil), sids...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// TestSidSnapshotScenarioS4 is scenario S4.
func TestSidSnapshotScenarioS4(t *testing.T) {
	c := New()
	a := types.SidRecord{
		SID:   sidN(1),
		URL:   "tcp://a:1",
		Attrs: map[string]int32{"load": 3},
		Types: []types.TypeBinding{{Role: types.RoleData, FSID: 9}},
	}
	b := types.SidRecord{
		SID:   sidN(2),
		URL:   "tcp://b:1",
		Attrs: map[string]int32{"load": 7},
		Types: []types.TypeBinding{{Role: types.RoleMeta, FSID: 9}, {Role: types.RoleData, FSID: 9}},
	}
	if err := c.Put(a, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(b, 0); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := c.Save(&buf); err != nil {
		t.Fatal(err)
	}

	c2 := New()
	if err := c2.Load(&buf); err != nil {
		t.Fatalf("load failed: %v\nsnapshot:\n%s", err, buf.String())
	}

	dataMatches := sortedSIDs(c2.LookupByType(types.RoleData, 9))
	wantData := sortedSIDs([]types.SID{a.SID, b.SID})
	if len(dataMatches) != len(wantData) || dataMatches[0] != wantData[0] || dataMatches[1] != wantData[1] {
		t.Fatalf("lookup_by_type(DATA,9) = %v, want %v", dataMatches, wantData)
	}

	metaMatches := c2.LookupByType(types.RoleMeta, 9)
	if len(metaMatches) != 1 || metaMatches[0] != b.SID {
		t.Fatalf("lookup_by_type(META,9) = %v, want [%v]", metaMatches, b.SID)
	}

	gotA, err := c2.Get(a.SID)
	if err != nil {
		t.Fatal(err)
	}
	if gotA.URL != a.URL || gotA.Attrs["load"] != 3 {
		t.Fatalf("record A round-tripped incorrectly: %+v", gotA)
	}
}

// TestSidSnapshotIdempotence is property 6: save -> load into an empty
// cache reproduces the original multiset of records and type bindings.
func TestSidSnapshotIdempotence(t *testing.T) {
	c := New()
	records := []types.SidRecord{
		{SID: sidN(1), Alias: "srv1", URL: "tcp://h1:1", BMIAddr: "tcp://h1:1",
			Attrs: map[string]int32{"load": 1, "capacity": 100},
			Types: []types.TypeBinding{{Role: types.RoleRoot, FSID: 0}, {Role: types.RoleData, FSID: 3}}},
		{SID: sidN(2), URL: "tcp://h2:1", BMIAddr: "tcp://h2:1",
			Attrs: map[string]int32{"load": 2},
			Types: []types.TypeBinding{{Role: types.RoleMeta, FSID: 3}}},
		{SID: sidN(3), URL: "tcp://h3:1", BMIAddr: "tcp://h3:1",
			Types: []types.TypeBinding{{Role: types.RoleDir, FSID: 5}, {Role: types.RoleDirData, FSID: 5}}},
	}
	for _, r := range records {
		if err := c.Put(r, 0); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := c.Save(&buf); err != nil {
		t.Fatal(err)
	}

	loaded := New()
	if err := loaded.Load(&buf); err != nil {
		t.Fatalf("load failed: %v\nsnapshot:\n%s", err, buf.String())
	}

	if loaded.Len() != len(records) {
		t.Fatalf("loaded.Len() = %d, want %d", loaded.Len(), len(records))
	}
	for _, want := range records {
		got, err := loaded.Get(want.SID)
		if err != nil {
			t.Fatalf("missing record %v after round-trip: %v", want.SID, err)
		}
		if got.URL != want.URL {
			t.Fatalf("url mismatch for %v: got %q want %q", want.SID, got.URL, want.URL)
		}
		if len(got.Attrs) != len(want.Attrs) {
			t.Fatalf("attrs mismatch for %v: got %v want %v", want.SID, got.Attrs, want.Attrs)
		}
		for k, v := range want.Attrs {
			if got.Attrs[k] != v {
				t.Fatalf("attr %q mismatch for %v: got %d want %d", k, want.SID, got.Attrs[k], v)
			}
		}
		for _, tb := range want.Types {
			if !got.HasType(tb.Role, tb.FSID) {
				t.Fatalf("type binding %v missing for %v after round-trip", tb, want.SID)
			}
		}
	}
}

func TestSnapshotLoadRejectsUnknownRole(t *testing.T) {
	snapshot := "<ServerDefines>\n" +
		"  <ServerDef>\n" +
		"    SID " + sidN(1).String() + "\n" +
		"    Address tcp://a:1(0)\n" +
		"    Attributes\n" +
		"    Type BOGUS(9)\n" +
		"  </ServerDef>\n" +
		"</ServerDefines>\n"
	c := New()
	err := c.Load(bytes.NewBufferString(snapshot))
	if types.KindOf(err) != types.KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument for unknown role, got %v", err)
	}
}

// TestSidSecondaryIndexConsistency is property 7: after any sequence of
// put/update/delete, lookup_by_type returns exactly the SIDs whose
// record's type set contains (role, fs_id) or (role, 0).
func TestSidSecondaryIndexConsistency(t *testing.T) {
	c := New()
	a, b, d := sidN(1), sidN(2), sidN(3)

	put := func(sid types.SID, types_ []types.TypeBinding) {
		if err := c.Put(types.SidRecord{SID: sid, Types: types_, Attrs: map[string]int32{}}, 0); err != nil {
			t.Fatal(err)
		}
	}
	put(a, []types.TypeBinding{{Role: types.RoleData, FSID: 9}})
	put(b, []types.TypeBinding{{Role: types.RoleData, FSID: 0}})
	put(d, []types.TypeBinding{{Role: types.RoleMeta, FSID: 9}})

	assertSet := func(role types.Role, fsID uint32, want ...types.SID) {
		t.Helper()
		got := sortedSIDs(c.LookupByType(role, fsID))
		wantSorted := sortedSIDs(want)
		if len(got) != len(wantSorted) {
			t.Fatalf("lookup_by_type(%s,%d) = %v, want %v", role, fsID, got, wantSorted)
		}
		for i := range got {
			if got[i] != wantSorted[i] {
				t.Fatalf("lookup_by_type(%s,%d) = %v, want %v", role, fsID, got, wantSorted)
			}
		}
	}

	assertSet(types.RoleData, 9, a, b)
	assertSet(types.RoleMeta, 9, d)

	if err := c.Delete(b); err != nil {
		t.Fatal(err)
	}
	assertSet(types.RoleData, 9, a)

	put(a, []types.TypeBinding{{Role: types.RoleMeta, FSID: 9}})
	assertSet(types.RoleData, 9)
	assertSet(types.RoleMeta, 9, a, d)
}

func TestTopKByAttr(t *testing.T) {
	c := New()
	c.Put(types.SidRecord{SID: sidN(1), Attrs: map[string]int32{"load": 3}}, 0)
	c.Put(types.SidRecord{SID: sidN(2), Attrs: map[string]int32{"load": 7}}, 0)
	c.Put(types.SidRecord{SID: sidN(3), Attrs: map[string]int32{"load": 5}}, 0)

	top := c.TopKByAttr("load", 2)
	if len(top) != 2 || top[0] != sidN(2) || top[1] != sidN(3) {
		t.Fatalf("TopKByAttr = %v, want [%v %v]", top, sidN(2), sidN(3))
	}
}

func TestPutNoOverwriteRefusesExisting(t *testing.T) {
	c := New()
	rec := types.SidRecord{SID: sidN(1)}
	if err := c.Put(rec, FlagNoOverwrite); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(rec, FlagNoOverwrite); types.KindOf(err) != types.KindExist {
		t.Fatalf("expected KindExist, got %v", err)
	}
}
