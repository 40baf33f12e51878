package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/keygate-hq/keygate-signer/pkg/models"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	entryPrefix  = []byte("e/")
	recordPrefix = []byte("i/")
)

// LevelJournal is a persistent journal using LevelDB. Besides the entry log
// it keeps the latest record of each intent under a big-endian id key so the
// audit trail iterates in id order.
type LevelJournal struct {
	mu sync.Mutex
	db *leveldb.DB
}

var _ Journal = (*LevelJournal)(nil)

// NewLevelJournal creates or opens a LevelDB journal at the specified path.
func NewLevelJournal(path string) (*LevelJournal, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	return &LevelJournal{db: db}, nil
}

func (j *LevelJournal) Append(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var record models.TransactionIntent
	if entry.Type != EntryProposed {
		raw, err := j.db.Get(recordKey(entry.IntentID), nil)
		if err != nil {
			if errors.Is(err, leveldb.ErrNotFound) {
				return fmt.Errorf("entry %d references unknown intent %d", entry.Seq, entry.IntentID)
			}
			return err
		}
		if err := json.Unmarshal(raw, &record); err != nil {
			return fmt.Errorf("failed to decode record %d: %w", entry.IntentID, err)
		}
	}
	if err := entry.ApplyTo(&record); err != nil {
		return err
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(entryKey(entry.Seq), entryJSON)
	batch.Put(recordKey(entry.IntentID), recordJSON)
	return j.db.Write(batch, nil)
}

func (j *LevelJournal) Entries() ([]Entry, error) {
	var entries []Entry
	err := j.scan(entryPrefix, func(value []byte) error {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

func (j *LevelJournal) Records() ([]models.TransactionIntent, error) {
	var records []models.TransactionIntent
	err := j.scan(recordPrefix, func(value []byte) error {
		var r models.TransactionIntent
		if err := json.Unmarshal(value, &r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	})
	return records, err
}

// Close closes the database connection.
func (j *LevelJournal) Close() error {
	return j.db.Close()
}

func (j *LevelJournal) scan(prefix []byte, fn func(value []byte) error) error {
	iter := j.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func entryKey(seq uint64) []byte {
	return appendUint64(entryPrefix, seq)
}

func recordKey(id uint64) []byte {
	return appendUint64(recordPrefix, id)
}

func appendUint64(prefix []byte, v uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], v)
	return key
}
