// Package sqlitecas stores documents in a single SQLite table keyed by CID.
package sqlitecas

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	_ "modernc.org/sqlite" // SQLite driver registration

	"signet.dev/verify/cidutil"
	"signet.dev/verify/storage"
)

// CAS is a SQLite-backed content-addressable store.
type CAS struct {
	db *sql.DB
}

var _ storage.CAS = (*CAS)(nil)

// Open opens or creates a store at path. Use ":memory:" for a private
// in-memory database.
func Open(path string) (*CAS, error) {
	if path == "" {
		return nil, errors.New("sqlitecas: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &CAS{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS objects (
			cid  TEXT PRIMARY KEY,
			data BLOB NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *CAS) Close() error {
	return c.db.Close()
}

func (c *CAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return cid.Undef, err
	}

	res, err := c.db.ExecContext(ctx, `INSERT OR IGNORE INTO objects (cid, data) VALUES (?, ?)`, id.String(), data)
	if err != nil {
		return cid.Undef, fmt.Errorf("inserting object: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return id, nil
	}

	existing, err := c.Get(ctx, id)
	if err != nil || !bytes.Equal(existing, data) {
		return cid.Undef, storage.ErrImmutable
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	var data []byte
	err := c.db.QueryRowContext(ctx, `SELECT data FROM objects WHERE cid = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading object: %w", err)
	}
	got, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return nil, err
	}
	if !got.Equals(id) {
		return nil, storage.ErrCIDMismatch
	}
	return data, nil
}

func (c *CAS) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	var one int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM objects WHERE cid = ?`, id.String()).Scan(&one)
	return err == nil
}
