package trove

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/trove-io/trove/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), t.TempDir(), 9)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestKeyvalRoundTrip exercises a basic write/read cycle.
func TestKeyvalRoundTrip(t *testing.T) {
	s := openTestStore(t)
	h := types.Handle{Lo: 1}
	if err := s.DspaceCreate(h, types.DSTypeMetaFile); err != nil {
		t.Fatal(err)
	}

	key, val := []byte("name"), []byte("hello world")
	if err := s.KeyvalWrite(h, key, val, 0); err != nil {
		t.Fatal(err)
	}
	got, err := s.KeyvalRead(h, key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, val) {
		t.Fatalf("read %q, want %q", got, val)
	}
}

func TestKeyvalWriteNoOverwrite(t *testing.T) {
	s := openTestStore(t)
	h := types.Handle{Lo: 1}
	s.DspaceCreate(h, types.DSTypeMetaFile)

	key := []byte("k")
	if err := s.KeyvalWrite(h, key, []byte("v1"), types.FlagNoOverwrite); err != nil {
		t.Fatal(err)
	}
	err := s.KeyvalWrite(h, key, []byte("v2"), types.FlagNoOverwrite)
	if types.KindOf(err) != types.KindExist {
		t.Fatalf("expected KindExist, got %v", err)
	}
}

// TestBstreamGatherScatter checks that gather/scatter over mismatched
// mem/stream region boundaries still round-trips.
func TestBstreamGatherScatter(t *testing.T) {
	s := openTestStore(t)
	h := types.Handle{Lo: 1}
	s.DspaceCreate(h, types.DSTypeDataFile)

	mem := []types.MemRegion{
		{Data: []byte("0123")},
		{Data: []byte("456789")},
	}
	stream := []types.StreamRegion{
		{Offset: 0, Length: 3},
		{Offset: 3, Length: 7},
	}
	n, err := s.BstreamWriteList(h, mem, stream, types.FlagSync)
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Fatalf("wrote %d bytes, want 10", n)
	}

	readMem := []types.MemRegion{
		{Data: make([]byte, 5)},
		{Data: make([]byte, 5)},
	}
	readStream := []types.StreamRegion{
		{Offset: 0, Length: 5},
		{Offset: 5, Length: 5},
	}
	n, err = s.BstreamReadList(h, readMem, readStream)
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Fatalf("read %d bytes, want 10", n)
	}
	got := append(append([]byte(nil), readMem[0].Data...), readMem[1].Data...)
	if string(got) != "0123456789" {
		t.Fatalf("round-trip mismatch: got %q", got)
	}
}

func TestListioRejectsTotalMismatch(t *testing.T) {
	s := openTestStore(t)
	h := types.Handle{Lo: 1}
	s.DspaceCreate(h, types.DSTypeDataFile)

	mem := []types.MemRegion{{Data: []byte("abc")}}
	stream := []types.StreamRegion{{Offset: 0, Length: 4}}
	_, err := s.BstreamWriteList(h, mem, stream, 0)
	if types.KindOf(err) != types.KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument, got %v", err)
	}
}

func TestListioRejectsOverlappingStreamRegions(t *testing.T) {
	s := openTestStore(t)
	h := types.Handle{Lo: 1}
	s.DspaceCreate(h, types.DSTypeDataFile)

	mem := []types.MemRegion{{Data: []byte("abcdef")}}
	stream := []types.StreamRegion{
		{Offset: 0, Length: 4},
		{Offset: 2, Length: 2},
	}
	_, err := s.BstreamWriteList(h, mem, stream, 0)
	if types.KindOf(err) != types.KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument for overlapping regions, got %v", err)
	}
}

// TestScenarioS1CreateWriteRead exercises create, write, and read on a
// fresh dataspace end to end.
func TestScenarioS1CreateWriteRead(t *testing.T) {
	s := openTestStore(t)
	h := types.Handle{Lo: 42}
	if err := s.DspaceCreate(h, types.DSTypeDataFile); err != nil {
		t.Fatal(err)
	}

	const size = 4 * 1024 * 1024
	pattern := make([]byte, size)
	for i := range pattern {
		pattern[i] = byte(i)
	}

	mem := []types.MemRegion{{Data: pattern}}
	stream := []types.StreamRegion{{Offset: 0, Length: size}}
	if _, err := s.BstreamWriteList(h, mem, stream, types.FlagSync); err != nil {
		t.Fatal(err)
	}

	readBuf := make([]byte, size)
	readMem := []types.MemRegion{{Data: readBuf}}
	n, err := s.BstreamReadList(h, readMem, stream)
	if err != nil {
		t.Fatal(err)
	}
	if n != size {
		t.Fatalf("read %d bytes, want %d", n, size)
	}
	if !bytes.Equal(readBuf, pattern) {
		t.Fatalf("readback does not match written pattern")
	}

	attr, err := s.DspaceGetAttr(h)
	if err != nil {
		t.Fatal(err)
	}
	if attr.BstreamSize != size {
		t.Fatalf("BstreamSize = %d, want %d", attr.BstreamSize, size)
	}
}

// TestScenarioS2DirectoryIteration exercises keyval_iterate over a
// directory's entries across cursor pages.
func TestScenarioS2DirectoryIteration(t *testing.T) {
	s := openTestStore(t)
	dir := types.Handle{Lo: 1}
	s.DspaceCreate(dir, types.DSTypeDirectory)

	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("f%02d", i)
		if err := s.KeyvalWrite(dir, []byte(name), []byte(name), 0); err != nil {
			t.Fatal(err)
		}
	}

	seen := make(map[string]bool)
	cursor := types.CursorStart
	for {
		entries, next, err := s.KeyvalIterate(dir, cursor, 10)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if seen[string(e.Key)] {
				t.Fatalf("entry %q returned twice", e.Key)
			}
			seen[string(e.Key)] = true
		}
		if next == types.CursorEnd {
			break
		}
		cursor = next
	}
	if len(seen) != 100 {
		t.Fatalf("saw %d distinct entries, want 100", len(seen))
	}
}

func TestDspaceRemovePurgesKeyvalAndBstream(t *testing.T) {
	s := openTestStore(t)
	h := types.Handle{Lo: 7}
	s.DspaceCreate(h, types.DSTypeDataFile)
	s.KeyvalWrite(h, []byte("k"), []byte("v"), 0)

	if err := s.DspaceRemove(h); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DspaceGetAttr(h); types.KindOf(err) != types.KindNoSuchHandle {
		t.Fatalf("expected KindNoSuchHandle after remove, got %v", err)
	}
	if _, err := s.KeyvalRead(h, []byte("k")); types.KindOf(err) != types.KindNoSuchKey {
		t.Fatalf("expected KindNoSuchKey after remove, got %v", err)
	}
}
