package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signet.dev/verify/b64u"
	"signet.dev/verify/canonical"
	"signet.dev/verify/chain"
	"signet.dev/verify/cidutil"
	"signet.dev/verify/config"
	"signet.dev/verify/internal/log"
	"signet.dev/verify/keys"
	"signet.dev/verify/model"
	"signet.dev/verify/rpc/verifysvc"
	"signet.dev/verify/storage"
	"signet.dev/verify/storage/grpccas"
)

func TestRun_FlagsAndConfigErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	ctx := context.Background()

	assert.Equal(t, 2, run(ctx, []string{"--nope"}, &out, &errOut))
	assert.Equal(t, 2, run(ctx, []string{"extra"}, &out, &errOut))
	assert.Equal(t, 2, run(ctx, []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, &out, &errOut))

	out.Reset()
	assert.Equal(t, 0, run(ctx, []string{"--list-backends"}, &out, &errOut))
	assert.Contains(t, out.String(), "localfs")
	assert.Contains(t, out.String(), "sqlite")
}

func quietLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.Init(log.Options{Stderr: &buf})
	return &buf
}

func TestNewDaemon_BadJWKS(t *testing.T) {
	quietLog(t)
	dir := t.TempDir()
	cfg := config.Default()
	cfg.JWKSFile = filepath.Join(dir, "missing.json")
	_, err := newDaemon(context.Background(), cfg)
	assert.ErrorContains(t, err, "read jwks")

	cfg.JWKSFile = filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(cfg.JWKSFile, []byte(`{"keys":`), 0o600))
	_, err = newDaemon(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid JWKS document")
}

func TestNewDaemon_MalformedKeyIsWarning(t *testing.T) {
	logs := quietLog(t)
	cfg := config.Default()
	cfg.JWKSFile = filepath.Join(t.TempDir(), "jwks.json")
	good := keys.JWK{Kty: keys.KeyTypeOKP, Crv: keys.CurveEd25519, X: b64u.Encode(make([]byte, keys.Ed25519PublicKeySize)), Kid: "good"}
	doc := keys.JWKS{Keys: []keys.JWK{{Kty: keys.KeyTypeOKP, Crv: keys.CurveEd25519, X: "AAAA", Kid: "bad"}, good}}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg.JWKSFile, raw, 0o600))

	d, err := newDaemon(context.Background(), cfg)
	require.NoError(t, err)
	defer d.close()
	assert.Equal(t, 2, d.svc.Keys.Len())
	_, err = keys.Select(d.svc.Keys, "good", keys.FallbackNone)
	assert.NoError(t, err)
	assert.Contains(t, logs.String(), "unusable keys in jwks")
	assert.Contains(t, logs.String(), "component=daemon")
}

func TestDaemon_ServesGRPCAndHTTP(t *testing.T) {
	dir := t.TempDir()
	storeConf := filepath.Join(dir, "store.json")
	require.NoError(t, os.WriteFile(storeConf, []byte(`{"backends":[{"name":"sqlite","config":{"path":"`+filepath.Join(dir, "docs.db")+`"}}]}`), 0o600))

	cfg := config.Default()
	cfg.StoreConfig = storeConf

	quietLog(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(ctx, cfg)
	require.NoError(t, err)
	defer d.close()

	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.serve(ctx, grpcLis, httpLis) }()

	resp, err := http.Get("http://" + httpLis.Addr().String() + "/healthz")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, true, health["store"])

	resp, err = http.Post("http://"+httpLis.Addr().String()+"/v1/cid", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	var cidResp map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cidResp))
	_ = resp.Body.Close()
	assert.Equal(t, "sha256:44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a", cidResp["cid"])

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()

	vc, err := verifysvc.Dial(dialCtx, grpcLis.Addr().String(), verifysvc.DialOptions{})
	require.NoError(t, err)
	defer vc.Close()
	doc := canonical.ObjectFromMap(map[string]canonical.Value{"k": canonical.Number(1)})
	got, err := vc.ComputeCID(dialCtx, doc)
	require.NoError(t, err)
	want, err := cidutil.Compute(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	cc, err := grpccas.Dial(dialCtx, grpcLis.Addr().String(), grpccas.DialOptions{})
	require.NoError(t, err)
	defer cc.Close()
	stored, err := storage.PutDocument(dialCtx, cc, doc)
	require.NoError(t, err)
	assert.Equal(t, want, stored)
	back, err := storage.GetDocument(dialCtx, d.svc.Store, stored)
	require.NoError(t, err)
	b, err := canonical.Encode(back)
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, string(b))

	// HTTP hydrates from the configured store by default, like gRPC.
	receipts := []chain.Receipt{{TraceID: "t-1", Hop: 1, Timestamp: "x", CID: stored, ReceiptHash: "rh1"}}
	body, err := json.Marshal(receipts)
	require.NoError(t, err)
	resp, err = http.Post("http://"+httpLis.Addr().String()+"/v1/chains:validate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var httpRep model.ChainReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&httpRep))
	_ = resp.Body.Close()
	assert.True(t, httpRep.AllVerified, "%+v", httpRep)

	grpcRep, err := vc.ValidateChain(dialCtx, body)
	require.NoError(t, err)
	assert.Equal(t, httpRep, grpcRep)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
