package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"signet.dev/verify/cidutil"
	"signet.dev/verify/storage"
	"signet.dev/verify/storage/localfs"
	"signet.dev/verify/storage/testkit"
)

func newLocal(t *testing.T) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	return cas
}

type failingCAS struct{ err error }

func (f failingCAS) Put(context.Context, []byte) (cid.Cid, error) { return cid.Undef, f.err }
func (f failingCAS) Get(context.Context, cid.Cid) ([]byte, error) { return nil, f.err }
func (f failingCAS) Has(context.Context, cid.Cid) bool            { return false }

func TestMultiCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.MultiCAS{Adapters: []storage.CAS{newLocal(t), newLocal(t)}}
	})
}

func TestReplicatingCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.ReplicatingCAS{Backends: []storage.NamedCAS{
			{Name: "a", CAS: newLocal(t)},
			{Name: "b", CAS: newLocal(t)},
		}}
	})
}

func TestMultiCAS_FallsBackInOrder(t *testing.T) {
	ctx := context.Background()
	first, second := newLocal(t), newLocal(t)
	id, err := second.Put(ctx, []byte("only in second"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	m := storage.MultiCAS{Adapters: []storage.CAS{first, second}}
	got, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "only in second" {
		t.Fatalf("unexpected bytes %q", got)
	}
	if !m.Has(ctx, id) {
		t.Fatalf("Has: expected true")
	}

	// Put goes to the first adapter only.
	id2, err := m.Put(ctx, []byte("new"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !first.Has(ctx, id2) || second.Has(ctx, id2) {
		t.Fatalf("expected write to first adapter only")
	}
}

func TestMultiCAS_StopsOnHardError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("backend down")
	second := newLocal(t)
	id, err := second.Put(ctx, []byte("x"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	m := storage.MultiCAS{Adapters: []storage.CAS{failingCAS{err: boom}, second}}
	if _, err := m.Get(ctx, id); !errors.Is(err, boom) {
		t.Fatalf("expected hard error to surface, got %v", err)
	}
	if _, err := (storage.MultiCAS{}).Put(ctx, []byte("x")); err == nil {
		t.Fatalf("expected error without adapters")
	}
}

func TestReplicatingCAS_PutAll(t *testing.T) {
	ctx := context.Background()
	a, b := newLocal(t), newLocal(t)
	r := storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "a", CAS: a}, {Name: "b", CAS: b}}}

	id, perBackend, err := r.PutAll(ctx, []byte("replicated"))
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if len(perBackend) != 2 || !perBackend["a"].Equals(id) || !perBackend["b"].Equals(id) {
		t.Fatalf("unexpected per-backend CIDs: %v", perBackend)
	}
	if !a.Has(ctx, id) || !b.Has(ctx, id) {
		t.Fatalf("expected both backends to hold the object")
	}

	bad := storage.ReplicatingCAS{Backends: []storage.NamedCAS{{Name: "a", CAS: a}, {Name: "down", CAS: failingCAS{err: errors.New("down")}}}}
	if _, err := bad.Put(ctx, []byte("y")); err == nil {
		t.Fatalf("expected failure when a backend rejects the write")
	}
}

func TestGetDocument_InvalidCID(t *testing.T) {
	_, err := storage.GetDocument(context.Background(), newLocal(t), cidutil.CID("sha256:nothex"))
	if err == nil {
		t.Fatalf("expected error")
	}
}
