package cache

import (
	"encoding/json"
	"log"

	"github.com/dgraph-io/badger/v4"
)

// Badger is the default Store: a local embedded database, so snapshots
// survive restarts without any external service.
type Badger struct {
	db *badger.DB
}

func NewBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

// NewBadgerInMemory opens a throwaway store for tests.
func NewBadgerInMemory() (*Badger, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Save(key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[cache] encode %s: %v", key, err)
		return
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		log.Printf("[cache] save %s: %v", key, err)
	}
}

func (b *Badger) Load(key string, dest interface{}) bool {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (b *Badger) Clear(key string) {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && err != badger.ErrKeyNotFound {
		log.Printf("[cache] clear %s: %v", key, err)
	}
}

func (b *Badger) Close() error {
	return b.db.Close()
}
