// Package archive moves canonical documents between stores as a
// deterministic TAR file, so a chain can be hydrated where the original
// store is unreachable.
//
// Layout:
//
//	documents/<64 hex digest>.json   canonical bytes of one document
//	index.json                       optional, non-authoritative
package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"signet.dev/verify/canonical"
	"signet.dev/verify/cidutil"
	"signet.dev/verify/storage"
)

// FormatVersion is the current index schema version.
const FormatVersion = 1

const (
	documentsDir = "documents/"
	indexName    = "index.json"
)

var epoch0 = time.Unix(0, 0).UTC()

type ExportOptions struct {
	// TraceID is recorded in the index when set.
	TraceID string
	// IncludeIndex controls whether index.json is written.
	IncludeIndex bool
	// SkipMissing leaves out documents the store does not have instead of
	// failing.
	SkipMissing bool
}

// ExportResult lists what Export wrote and skipped, in CID order.
type ExportResult struct {
	Exported []cidutil.CID
	Missing  []cidutil.CID
}

// Export writes the documents named by ids from cas to w.
//
// The archive bytes depend only on the set of documents: entries are sorted
// and TAR headers are normalized. Every document is checked against its CID
// before it is written.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cidutil.CID, opts ExportOptions) (ExportResult, error) {
	if cas == nil {
		return ExportResult{}, fmt.Errorf("archive: nil store")
	}

	uniq := make(map[cidutil.CID]struct{}, len(ids))
	for _, id := range ids {
		if !id.Valid() {
			return ExportResult{}, fmt.Errorf("archive: %q: %w", id, storage.ErrInvalidCID)
		}
		uniq[id] = struct{}{}
	}
	sorted := make([]cidutil.CID, 0, len(uniq))
	for id := range uniq {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	tw := tar.NewWriter(w)
	var res ExportResult
	entries := make([]indexEntry, 0, len(sorted))
	for _, id := range sorted {
		doc, err := storage.GetDocument(ctx, cas, id)
		if err != nil {
			if opts.SkipMissing && storage.IsNotFound(err) {
				res.Missing = append(res.Missing, id)
				continue
			}
			_ = tw.Close()
			return ExportResult{}, fmt.Errorf("archive: %s: %w", id, err)
		}
		b, err := canonical.Encode(doc)
		if err != nil {
			_ = tw.Close()
			return ExportResult{}, err
		}
		if err := writeFile(tw, entryName(id), b); err != nil {
			_ = tw.Close()
			return ExportResult{}, err
		}
		res.Exported = append(res.Exported, id)
		entries = append(entries, indexEntry{CID: string(id), Size: len(b)})
	}

	if opts.IncludeIndex {
		b, err := json.Marshal(indexJSON{
			Version:   FormatVersion,
			TraceID:   opts.TraceID,
			Documents: entries,
		})
		if err != nil {
			_ = tw.Close()
			return ExportResult{}, err
		}
		if err := writeFile(tw, indexName, append(b, '\n')); err != nil {
			_ = tw.Close()
			return ExportResult{}, err
		}
	}

	return res, tw.Close()
}

// DefaultMaxDocumentSize bounds one document entry when ImportOptions sets
// no limit.
const DefaultMaxDocumentSize = 16 << 20

type ImportOptions struct {
	// IgnoreUnknown skips entries outside documents/ instead of failing.
	IgnoreUnknown bool
	// MaxDocumentSize caps the bytes read for one document. Zero means
	// DefaultMaxDocumentSize.
	MaxDocumentSize int64
}

// Import reads an archive from r and stores every document in cas. It
// returns the imported CIDs in archive order.
//
// Each document must be canonical JSON whose digest matches its entry name.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) ([]cidutil.CID, error) {
	if cas == nil {
		return nil, fmt.Errorf("archive: nil store")
	}

	maxSize := opts.MaxDocumentSize
	if maxSize <= 0 {
		maxSize = DefaultMaxDocumentSize
	}

	tr := tar.NewReader(r)
	seen := map[cidutil.CID]struct{}{}
	var imported []cidutil.CID

	for {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		h, err := tr.Next()
		if err == io.EOF {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return imported, fmt.Errorf("archive: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("archive: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}
		if name == indexName {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}
		id, ok := parseEntryName(name)
		if !ok {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return imported, fmt.Errorf("archive: unknown entry: %s", name)
		}
		if _, dup := seen[id]; dup {
			return imported, fmt.Errorf("archive: duplicate document entry: %s", id)
		}
		seen[id] = struct{}{}

		if h.Size > maxSize {
			return imported, fmt.Errorf("archive: %s: %d bytes exceeds the %d byte document limit", name, h.Size, maxSize)
		}
		payload, err := io.ReadAll(io.LimitReader(tr, maxSize+1))
		if err != nil {
			return imported, err
		}
		if int64(len(payload)) > maxSize {
			return imported, fmt.Errorf("archive: %s exceeds the %d byte document limit", name, maxSize)
		}
		got, err := cidutil.ComputeBytes(payload)
		if err != nil {
			return imported, err
		}
		if got != id {
			return imported, fmt.Errorf("archive: %s: %w", name, storage.ErrCIDMismatch)
		}
		doc, err := canonical.Parse(payload)
		if err != nil {
			return imported, fmt.Errorf("archive: %s: %w", name, err)
		}
		if enc, err := canonical.Encode(doc); err != nil || !bytes.Equal(enc, payload) {
			return imported, fmt.Errorf("archive: %s is not in canonical form", name)
		}

		if _, err := storage.PutDocument(ctx, cas, doc); err != nil {
			return imported, fmt.Errorf("archive: store %s: %w", id, err)
		}
		imported = append(imported, id)
	}
}

type indexJSON struct {
	Version   int          `json:"version"`
	TraceID   string       `json:"traceId,omitempty"`
	Documents []indexEntry `json:"documents"`
}

type indexEntry struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

func entryName(id cidutil.CID) string {
	return documentsDir + strings.TrimPrefix(string(id), cidutil.Prefix) + ".json"
}

func parseEntryName(name string) (cidutil.CID, bool) {
	rest, ok := strings.CutPrefix(name, documentsDir)
	if !ok {
		return "", false
	}
	hex, ok := strings.CutSuffix(rest, ".json")
	if !ok {
		return "", false
	}
	id, err := cidutil.Parse(cidutil.Prefix + hex)
	if err != nil {
		return "", false
	}
	return id, true
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
