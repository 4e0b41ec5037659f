package storage

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// BadgerBackend implements Backend on a BadgerDB instance, on disk or fully
// in memory.
type BadgerBackend struct {
	db     *badger.DB
	logger *log.Logger
}

var _ Backend = (*BadgerBackend)(nil)

// badgerLogAdapter bridges badger's logger interface onto charm log.
type badgerLogAdapter struct {
	logger *log.Logger
}

var _ badger.Logger = (*badgerLogAdapter)(nil)

func (a *badgerLogAdapter) Errorf(msg string, items ...any)   { a.logger.Errorf(msg, items...) }
func (a *badgerLogAdapter) Warningf(msg string, items ...any) { a.logger.Warnf(msg, items...) }
func (a *badgerLogAdapter) Infof(msg string, items ...any)    { a.logger.Debugf(msg, items...) }
func (a *badgerLogAdapter) Debugf(msg string, items ...any)   { a.logger.Debugf(msg, items...) }

// OpenBadger opens a badger database at dirPath, creating the directory if
// needed. With inMemory set, dirPath is ignored and nothing touches disk.
func OpenBadger(dirPath string, inMemory bool, logger *log.Logger) (*BadgerBackend, error) {
	if logger == nil {
		logger = log.Default()
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(dirPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(dirPath, 0755); err != nil {
				return nil, err
			}
		} else if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dirPath)
		}
		opts = badger.DefaultOptions(dirPath)
	}

	opts.Logger = &badgerLogAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerBackend{db: db, logger: logger}, nil
}

func (b *BadgerBackend) Get(key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *BadgerBackend) Set(key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *BadgerBackend) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *BadgerBackend) Keys(prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, string(iter.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
