package archive_test

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"signet.dev/verify/canonical"
	"signet.dev/verify/cidutil"
	"signet.dev/verify/storage"
	"signet.dev/verify/storage/archive"
	"signet.dev/verify/storage/localfs"
)

func newStore(t *testing.T) *localfs.CAS {
	t.Helper()
	cas, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return cas
}

func put(t *testing.T, cas storage.CAS, doc canonical.Value) cidutil.CID {
	t.Helper()
	id, err := storage.PutDocument(context.Background(), cas, doc)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func doc(key, val string) canonical.Value {
	return canonical.ObjectFromMap(map[string]canonical.Value{key: canonical.String(val)})
}

func TestArchive_ExportIsDeterministic(t *testing.T) {
	ctx := context.Background()
	cas := newStore(t)
	id1 := put(t, cas, doc("a", "hello"))
	id2 := put(t, cas, doc("b", "world"))

	var outA, outB bytes.Buffer
	if _, err := archive.Export(ctx, &outA, cas, []cidutil.CID{id2, id1}, archive.ExportOptions{IncludeIndex: true, TraceID: "t-1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := archive.Export(ctx, &outB, cas, []cidutil.CID{id1, id2, id1}, archive.ExportOptions{IncludeIndex: true, TraceID: "t-1"}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic archive bytes")
	}

	tr := tar.NewReader(bytes.NewReader(outA.Bytes()))
	var names []string
	for {
		h, err := tr.Next()
		if err != nil {
			break
		}
		if !h.ModTime.Equal(time.Unix(0, 0)) {
			t.Fatalf("%s: expected zero mod time, got %v", h.Name, h.ModTime)
		}
		names = append(names, h.Name)
		if h.Name == "index.json" {
			var idx struct {
				Version   int    `json:"version"`
				TraceID   string `json:"traceId"`
				Documents []struct {
					CID string `json:"cid"`
				} `json:"documents"`
			}
			if err := json.NewDecoder(tr).Decode(&idx); err != nil {
				t.Fatal(err)
			}
			if idx.Version != archive.FormatVersion || idx.TraceID != "t-1" || len(idx.Documents) != 2 {
				t.Fatalf("unexpected index %+v", idx)
			}
		}
	}
	if len(names) != 3 || names[2] != "index.json" || !strings.HasPrefix(names[0], "documents/") {
		t.Fatalf("unexpected entries %v", names)
	}
}

func TestArchive_ImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	want := doc("z", "payload")
	id := put(t, src, want)

	var buf bytes.Buffer
	res, err := archive.Export(ctx, &buf, src, []cidutil.CID{id}, archive.ExportOptions{IncludeIndex: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Exported) != 1 || len(res.Missing) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	dst := newStore(t)
	got, err := archive.Import(ctx, bytes.NewReader(buf.Bytes()), dst, archive.ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != id {
		t.Fatalf("imported %v, want [%s]", got, id)
	}
	back, err := storage.GetDocument(ctx, dst, id)
	if err != nil {
		t.Fatal(err)
	}
	if c, _ := cidutil.Compute(ctx, back); c != id {
		t.Fatalf("document changed on import")
	}
}

func TestArchive_ExportMissing(t *testing.T) {
	ctx := context.Background()
	cas := newStore(t)
	present := put(t, cas, doc("a", "here"))
	absent, err := cidutil.ComputeBytes([]byte(`{"a":"gone"}`))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := archive.Export(ctx, &buf, cas, []cidutil.CID{present, absent}, archive.ExportOptions{}); !storage.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	buf.Reset()
	res, err := archive.Export(ctx, &buf, cas, []cidutil.CID{present, absent}, archive.ExportOptions{SkipMissing: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Exported) != 1 || len(res.Missing) != 1 || res.Missing[0] != absent {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := archive.Export(ctx, &buf, cas, []cidutil.CID{"sha256:nothex"}, archive.ExportOptions{}); !errors.Is(err, storage.ErrInvalidCID) {
		t.Fatalf("expected invalid cid, got %v", err)
	}
}

func TestArchive_ImportRejectsBadEntries(t *testing.T) {
	body := []byte(`{"a":"x"}`)
	id, err := cidutil.ComputeBytes(body)
	if err != nil {
		t.Fatal(err)
	}
	hexName := "documents/" + strings.TrimPrefix(string(id), cidutil.Prefix) + ".json"
	other, err := cidutil.ComputeBytes([]byte(`{"a":"y"}`))
	if err != nil {
		t.Fatal(err)
	}
	otherName := "documents/" + strings.TrimPrefix(string(other), cidutil.Prefix) + ".json"

	nonCanonical := []byte(`{ "a": "x" }`)
	ncID, err := cidutil.ComputeBytes(nonCanonical)
	if err != nil {
		t.Fatal(err)
	}
	ncName := "documents/" + strings.TrimPrefix(string(ncID), cidutil.Prefix) + ".json"

	cases := []struct {
		name    string
		entries []tarEntry
		wantErr error
		wantMsg string
	}{
		{"digest mismatch", []tarEntry{{otherName, body}}, storage.ErrCIDMismatch, ""},
		{"duplicate", []tarEntry{{hexName, body}, {hexName, body}}, nil, "duplicate"},
		{"traversal", []tarEntry{{"../" + hexName, body}}, nil, "invalid entry path"},
		{"unknown", []tarEntry{{"blocks/x", body}}, nil, "unknown entry"},
		{"not canonical", []tarEntry{{ncName, nonCanonical}}, nil, "canonical form"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := archive.Import(context.Background(), bytes.NewReader(makeTar(t, tc.entries)), newStore(t), archive.ImportOptions{})
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.wantMsg != "" && !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected %q in %v", tc.wantMsg, err)
			}
		})
	}
}

func TestArchive_ImportSizeLimit(t *testing.T) {
	body := []byte(`{"a":"` + strings.Repeat("x", 64) + `"}`)
	id, err := cidutil.ComputeBytes(body)
	if err != nil {
		t.Fatal(err)
	}
	name := "documents/" + strings.TrimPrefix(string(id), cidutil.Prefix) + ".json"
	data := makeTar(t, []tarEntry{{name, body}})

	_, err = archive.Import(context.Background(), bytes.NewReader(data), newStore(t), archive.ImportOptions{MaxDocumentSize: 32})
	if err == nil || !strings.Contains(err.Error(), "document limit") {
		t.Fatalf("expected size limit error, got %v", err)
	}

	got, err := archive.Import(context.Background(), bytes.NewReader(data), newStore(t), archive.ImportOptions{MaxDocumentSize: int64(len(body))})
	if err != nil {
		t.Fatalf("a document at the limit must import: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("imported %v", got)
	}
}

func TestArchive_ImportIgnoreUnknown(t *testing.T) {
	body := []byte(`{"a":"x"}`)
	id, err := cidutil.ComputeBytes(body)
	if err != nil {
		t.Fatal(err)
	}
	name := "./documents/" + strings.TrimPrefix(string(id), cidutil.Prefix) + ".json"
	data := makeTar(t, []tarEntry{{"README", []byte("hi")}, {name, body}})

	got, err := archive.Import(context.Background(), bytes.NewReader(data), newStore(t), archive.ImportOptions{IgnoreUnknown: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != id {
		t.Fatalf("imported %v", got)
	}
}

type tarEntry struct {
	name string
	body []byte
}

func makeTar(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), ModTime: time.Unix(0, 0), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(e.body); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
