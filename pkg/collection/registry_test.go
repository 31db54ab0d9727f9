package collection

import (
	"testing"

	"github.com/trove-io/trove/pkg/types"
)

func TestCreateRefusesFSIDCollision(t *testing.T) {
	r, err := Open(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	rng := types.HandleRange{Start: 0, End: 999}
	if _, err := r.Create("fs-a", 9, rng, types.RootHandle(0)); err != nil {
		t.Fatal(err)
	}
	_, err = r.Create("fs-b", 9, rng, types.RootHandle(0))
	if types.KindOf(err) != types.KindExist {
		t.Fatalf("expected KindExist on fs_id collision, got %v", err)
	}
}

func TestLookupAndGet(t *testing.T) {
	r, err := Open(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	rng := types.HandleRange{Start: 0, End: 999}
	c, err := r.Create("myfs", 9, rng, types.RootHandle(0))
	if err != nil {
		t.Fatal(err)
	}

	id, err := r.Lookup("myfs")
	if err != nil {
		t.Fatal(err)
	}
	if id != c.ID {
		t.Fatalf("lookup returned %q, want %q", id, c.ID)
	}

	got, _, _, err := r.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.FSID != 9 {
		t.Fatalf("got fs_id %d, want 9", got.FSID)
	}
}

func TestEAttrRoundTrip(t *testing.T) {
	r, err := Open(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	rng := types.HandleRange{Start: 0, End: 999}
	c, err := r.Create("myfs", 9, rng, types.RootHandle(0))
	if err != nil {
		t.Fatal(err)
	}

	if err := r.SetEAttr(c.ID, "striping", []byte("default")); err != nil {
		t.Fatal(err)
	}
	v, err := r.GetEAttr(c.ID, "striping")
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "default" {
		t.Fatalf("got %q, want %q", v, "default")
	}
}

func TestRemoveRefusesNonEmptyWithoutPurge(t *testing.T) {
	r, err := Open(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	rng := types.HandleRange{Start: 0, End: 999}
	c, err := r.Create("myfs", 9, rng, types.RootHandle(0))
	if err != nil {
		t.Fatal(err)
	}

	_, alloc, store, err := r.Get(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	h, err := alloc.Allocate(types.DSTypeMetaFile)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.DspaceCreate(h, types.DSTypeMetaFile); err != nil {
		t.Fatal(err)
	}

	if err := r.Remove(c.ID, false); types.KindOf(err) != types.KindExist {
		t.Fatalf("expected KindExist removing non-empty collection, got %v", err)
	}
	if err := r.Remove(c.ID, true); err != nil {
		t.Fatalf("purge remove failed: %v", err)
	}
	if _, err := r.Lookup("myfs"); types.KindOf(err) != types.KindNoSuchCollection {
		t.Fatalf("expected collection gone after remove, got %v", err)
	}
}

func TestRestoreRecoversAllocatorAndEAttrs(t *testing.T) {
	dataDir, metaDir := t.TempDir(), t.TempDir()
	rng := types.HandleRange{Start: 0, End: 999}

	r1, err := Open(dataDir, metaDir)
	if err != nil {
		t.Fatal(err)
	}
	c, err := r1.Create("myfs", 9, rng, types.RootHandle(0))
	if err != nil {
		t.Fatal(err)
	}
	if err := r1.SetEAttr(c.ID, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	_, alloc, store, err := r1.Get(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := alloc.Allocate(types.DSTypeMetaFile)
	store.DspaceCreate(h, types.DSTypeMetaFile)
	if err := r1.Close(); err != nil {
		t.Fatal(err)
	}

	r2, err := Open(dataDir, metaDir)
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()

	id, err := r2.Lookup("myfs")
	if err != nil {
		t.Fatal(err)
	}
	_, alloc2, _, err := r2.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if !alloc2.IsLive(h) {
		t.Fatalf("expected handle %v live after restore", h)
	}
	v, err := r2.GetEAttr(id, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "v" {
		t.Fatalf("got %q, want %q", v, "v")
	}
}
