package grpccas

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"signet.dev/verify/canonical"
	"signet.dev/verify/storage"
	"signet.dev/verify/storage/localfs"
	"signet.dev/verify/storage/testkit"
)

func startServer(t *testing.T) (*Client, *localfs.CAS) {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterCASServer(srv, &Server{CAS: cas})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	client, err := Dial(context.Background(), "passthrough:///bufnet", DialOptions{
		Extra: []grpc.DialOption{grpc.WithContextDialer(dialer)},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	client.Timeout = 2 * time.Second
	t.Cleanup(func() { _ = client.Close() })
	return client, cas
}

func TestGRPCCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		client, _ := startServer(t)
		return client
	})
}

func TestGRPCCAS_LocalFS_RoundTrip(t *testing.T) {
	client, backing := startServer(t)
	ctx := context.Background()

	payload := []byte("hello grpccas")
	id, err := client.Put(ctx, payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !backing.Has(ctx, id) {
		t.Fatalf("expected object in backing store")
	}
	got, err := client.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestGRPCCAS_DocumentCIDOnTheWire(t *testing.T) {
	client, _ := startServer(t)
	ctx := context.Background()

	doc, err := canonical.Parse([]byte(`{"Document":{"Echo":{"foo":"bar"}}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	docCID, err := storage.PutDocument(ctx, client, doc)
	if err != nil {
		t.Fatalf("PutDocument: %v", err)
	}

	// The server also accepts sha256:<hex> identifiers directly.
	reply, err := client.client.Has(ctx, wrapperspb.String(docCID.String()))
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !reply.GetValue() {
		t.Fatalf("expected server to resolve %s", docCID)
	}

	if _, err := client.client.Get(ctx, wrapperspb.String("not a cid")); mapRPC(err) != storage.ErrInvalidCID {
		t.Fatalf("expected ErrInvalidCID, got %v", err)
	}
}

func TestServer_MissingCAS(t *testing.T) {
	var s Server
	if _, err := s.Put(context.Background(), wrapperspb.Bytes([]byte("x"))); err == nil {
		t.Fatalf("expected FailedPrecondition")
	}
}
