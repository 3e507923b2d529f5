// Package leveldb implements internal/store.Store over goleveldb, the
// teacher's own KV engine (daglabs-btcd/database2). Column families are
// emulated by prefixing every key with its CF name and a NUL separator,
// the same bucket-over-flat-keyspace technique database2 uses, since
// goleveldb itself has no concept of column families or multi-table
// transactions.
package leveldb

import (
	"bytes"

	"github.com/pkg/errors"
	gold "github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	goldopt "github.com/syndtr/goleveldb/leveldb/opt"
	goldutil "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/nintondo/doge20indexer/internal/errs"
	"github.com/nintondo/doge20indexer/internal/store"
)

// DB is a store.Store backed by a single goleveldb handle.
type DB struct {
	db *gold.DB
}

// Open opens (creating if absent) a goleveldb database at path.
func Open(path string) (*DB, error) {
	opts := &goldopt.Options{
		Filter: nil,
	}
	db, err := gold.OpenFile(path, opts)
	if err != nil {
		return nil, errs.Wrapf(errs.KindFatalStore, err, "leveldb: open %s", path)
	}
	return &DB{db: db}, nil
}

func cfKey(cf string, key []byte) []byte {
	out := make([]byte, 0, len(cf)+1+len(key))
	out = append(out, cf...)
	out = append(out, 0x00)
	out = append(out, key...)
	return out
}

func (d *DB) Get(cf string, key []byte) ([]byte, error) {
	v, err := d.db.Get(cfKey(cf, key), nil)
	if err != nil {
		if errors.Is(err, gold.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, errs.Wrapf(errs.KindFatalStore, err, "leveldb: get cf=%s", cf)
	}
	return v, nil
}

func (d *DB) Iterator(cf string, prefix []byte) (store.Iterator, error) {
	rng := goldutil.BytesPrefix(cfKey(cf, prefix))
	it := d.db.NewIterator(rng, nil)
	return &dbIterator{it: it}, nil
}

func (d *DB) NewBatch() store.Batch {
	return &batch{b: new(gold.Batch)}
}

func (d *DB) Commit(b store.Batch) error {
	bt, ok := b.(*batch)
	if !ok {
		return errors.New("leveldb: foreign batch type")
	}
	if err := d.db.Write(bt.b, nil); err != nil {
		return errs.Wrap(errs.KindFatalStore, err, "leveldb: commit batch")
	}
	return nil
}

func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return errs.Wrap(errs.KindFatalStore, err, "leveldb: close")
	}
	return nil
}

type batch struct {
	b *gold.Batch
}

func (b *batch) Put(cf string, key, value []byte) {
	b.b.Put(cfKey(cf, key), value)
}

func (b *batch) Delete(cf string, key []byte) {
	b.b.Delete(cfKey(cf, key))
}

type dbIterator struct {
	it  iterator.Iterator
	err error
}

func (it *dbIterator) Next() bool {
	return it.it.Next()
}

func (it *dbIterator) Key() []byte {
	k := it.it.Key()
	if idx := bytes.IndexByte(k, 0x00); idx >= 0 {
		return k[idx+1:]
	}
	return k
}

func (it *dbIterator) Value() []byte {
	return it.it.Value()
}

func (it *dbIterator) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.it.Error()
}

func (it *dbIterator) Close() error {
	it.it.Release()
	return nil
}
