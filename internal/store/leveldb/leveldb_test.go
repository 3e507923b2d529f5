package leveldb

import (
	"path/filepath"
	"testing"

	"github.com/nintondo/doge20indexer/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetRoundTripsThroughBatch(t *testing.T) {
	db := openTestDB(t)

	b := db.NewBatch()
	b.Put("tokens", []byte("doge"), []byte("meta"))
	if err := db.Commit(b); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	v, err := db.Get("tokens", []byte("doge"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(v) != "meta" {
		t.Fatalf("Get = %q, want meta", v)
	}
}

func TestGetMissingKeyReturnsErrNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.Get("tokens", []byte("absent")); err != store.ErrNotFound {
		t.Fatalf("Get = %v, want store.ErrNotFound", err)
	}
}

func TestColumnFamiliesAreIsolated(t *testing.T) {
	db := openTestDB(t)

	b := db.NewBatch()
	b.Put("balances", []byte("key"), []byte("a"))
	b.Put("transfers", []byte("key"), []byte("b"))
	if err := db.Commit(b); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	v1, err := db.Get("balances", []byte("key"))
	if err != nil {
		t.Fatalf("Get balances: %v", err)
	}
	v2, err := db.Get("transfers", []byte("key"))
	if err != nil {
		t.Fatalf("Get transfers: %v", err)
	}
	if string(v1) == string(v2) {
		t.Fatal("expected CF-isolated values to differ")
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	db := openTestDB(t)

	b := db.NewBatch()
	b.Put("balances", []byte("key"), []byte("v"))
	if err := db.Commit(b); err != nil {
		t.Fatalf("Commit put: %v", err)
	}

	b2 := db.NewBatch()
	b2.Delete("balances", []byte("key"))
	if err := db.Commit(b2); err != nil {
		t.Fatalf("Commit delete: %v", err)
	}

	if _, err := db.Get("balances", []byte("key")); err != store.ErrNotFound {
		t.Fatalf("Get after delete = %v, want store.ErrNotFound", err)
	}
}

func TestIteratorScopesToPrefixAndStripsCFKey(t *testing.T) {
	db := openTestDB(t)

	b := db.NewBatch()
	b.Put("balances", []byte("aa"), []byte("1"))
	b.Put("balances", []byte("ab"), []byte("2"))
	b.Put("transfers", []byte("aa"), []byte("3"))
	if err := db.Commit(b); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	it, err := db.Iterator("balances", []byte("a"))
	if err != nil {
		t.Fatalf("Iterator: %v", err)
	}
	defer it.Close()

	got := map[string]string{}
	for it.Next() {
		got[string(it.Key())] = string(it.Value())
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if len(got) != 2 || got["aa"] != "1" || got["ab"] != "2" {
		t.Fatalf("unexpected scan result: %+v", got)
	}
}
