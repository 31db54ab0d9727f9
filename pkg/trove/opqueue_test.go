package trove

import (
	"testing"
	"time"

	"github.com/trove-io/trove/pkg/types"
)

func waitDone(t *testing.T, q *Queue, id OpID) (interface{}, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		done, result, err := q.Test(id)
		if done {
			return result, err
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("op %d never completed", id)
	return nil, nil
}

func TestQueuePostAndTest(t *testing.T) {
	s := openTestStore(t)
	q := NewQueue(s, 2, 8)
	defer q.Close()

	h := types.Handle{Lo: 1}
	id := q.PostDspaceCreate(h, types.DSTypeMetaFile)
	if _, err := waitDone(t, q, id); err != nil {
		t.Fatal(err)
	}

	writeID := q.PostKeyvalWrite(h, []byte("k"), []byte("v"), 0)
	if _, err := waitDone(t, q, writeID); err != nil {
		t.Fatal(err)
	}

	readID := q.PostKeyvalRead(h, []byte("k"))
	result, err := waitDone(t, q, readID)
	if err != nil {
		t.Fatal(err)
	}
	if string(result.([]byte)) != "v" {
		t.Fatalf("got %q, want %q", result, "v")
	}
}

func TestQueueTestIsReapingIdempotent(t *testing.T) {
	s := openTestStore(t)
	q := NewQueue(s, 1, 4)
	defer q.Close()

	h := types.Handle{Lo: 1}
	id := q.PostDspaceCreate(h, types.DSTypeMetaFile)
	waitDone(t, q, id)

	// The record was reaped by waitDone's successful Test call; testing
	// the same op_id again must report unknown-operation, not a stale
	// completion: op_id is never recycled while unreaped, and reaping is
	// implicit on the first test that observes done.
	if _, _, err := q.Test(id); types.KindOf(err) != types.KindInvalidArgument {
		t.Fatalf("expected unknown-op error after reap, got %v", err)
	}
}

func TestQueueUnknownOpID(t *testing.T) {
	s := openTestStore(t)
	q := NewQueue(s, 1, 4)
	defer q.Close()

	if _, _, err := q.Test(OpID(9999)); types.KindOf(err) != types.KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument for unknown op_id, got %v", err)
	}
}
