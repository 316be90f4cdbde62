package localfs

import (
	"context"
	"os"
	"testing"

	"signet.dev/verify/cidutil"
	"signet.dev/verify/storage"
	"signet.dev/verify/storage/casregistry"
	"signet.dev/verify/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		t.Helper()
		cas, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return cas
	})
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	ctx := context.Background()
	cas, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := cas.Put(ctx, orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path := cas.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err = cas.Get(ctx, id); err != storage.ErrCIDMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrCIDMismatch)
	}

	// Put must not repair or overwrite the corrupted object.
	if _, err = cas.Put(ctx, orig); err != storage.ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, storage.ErrImmutable)
	}

	wantID, err := cidutil.CIDv1RawSHA256CID(orig)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
	}
	if !id.Equals(wantID) {
		t.Fatalf("unexpected CID: got %s want %s", id, wantID)
	}
}

func TestLocalFS_OpenFromRegistry(t *testing.T) {
	ctx := context.Background()
	if _, _, err := casregistry.OpenWithConfig(ctx, "localfs", casregistry.UsageCLI, nil); err == nil {
		t.Fatalf("expected missing dir error")
	}
	cas, closeFn, err := casregistry.OpenWithConfig(ctx, "localfs", casregistry.UsageDaemon, map[string]string{"dir": t.TempDir()})
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("localfs has nothing to close")
	}
	if _, err := cas.Put(ctx, []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
}
