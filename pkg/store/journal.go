package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/keygate-hq/keygate-signer/pkg/models"
)

// EntryType names a kind of journal entry
type EntryType string

const (
	EntryProposed EntryType = "proposed"
	EntryVote     EntryType = "vote"
	EntryStatus   EntryType = "status"
)

// Entry is one committed mutation of an intent. Entries are appended in
// commit order and replaying them reproduces the store exactly.
type Entry struct {
	Seq      uint64                    `json:"seq"`
	Type     EntryType                 `json:"type"`
	IntentID uint64                    `json:"intent_id"`
	Intent   *models.TransactionIntent `json:"intent,omitempty"`
	Signer   models.Signer             `json:"signer,omitempty"`
	Approve  bool                      `json:"approve,omitempty"`
	Status   *models.Status            `json:"status,omitempty"`
}

// ApplyTo folds the entry into the intent it belongs to. For a proposed
// entry the intent is replaced by the proposed record.
func (e Entry) ApplyTo(intent *models.TransactionIntent) error {
	switch e.Type {
	case EntryProposed:
		if e.Intent == nil {
			return fmt.Errorf("entry %d: proposed entry without intent", e.Seq)
		}
		*intent = e.Intent.Clone()
	case EntryVote:
		applyVote(intent, e.Signer, e.Approve)
	case EntryStatus:
		if e.Status == nil {
			return fmt.Errorf("entry %d: status entry without status", e.Seq)
		}
		intent.Status = *e.Status
	default:
		return fmt.Errorf("entry %d: unknown entry type %q", e.Seq, e.Type)
	}
	return nil
}

// Journal persists committed entries
type Journal interface {
	// Append durably records the entry
	Append(entry Entry) error
	// Entries returns every entry in sequence order
	Entries() ([]Entry, error)
	// Records returns the latest record of every intent ordered by id
	Records() ([]models.TransactionIntent, error)
	Close() error
}

// MemJournal keeps entries in memory, for tests and ephemeral runs
type MemJournal struct {
	mu      sync.RWMutex
	entries []Entry
}

var _ Journal = (*MemJournal)(nil)

func NewMemJournal() *MemJournal {
	return &MemJournal{}
}

func (j *MemJournal) Append(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, cloneEntry(entry))
	return nil
}

func (j *MemJournal) Entries() ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, len(j.entries))
	for i, e := range j.entries {
		out[i] = cloneEntry(e)
	}
	return out, nil
}

func (j *MemJournal) Records() ([]models.TransactionIntent, error) {
	entries, err := j.Entries()
	if err != nil {
		return nil, err
	}
	return fold(entries)
}

// Close satisfies the Journal interface for MemJournal.
func (j *MemJournal) Close() error {
	return nil
}

// fold replays entries into records ordered by id
func fold(entries []Entry) ([]models.TransactionIntent, error) {
	byID := make(map[uint64]*models.TransactionIntent)
	for _, e := range entries {
		intent, ok := byID[e.IntentID]
		if !ok {
			if e.Type != EntryProposed {
				return nil, fmt.Errorf("entry %d references unknown intent %d", e.Seq, e.IntentID)
			}
			intent = &models.TransactionIntent{}
			byID[e.IntentID] = intent
		}
		if err := e.ApplyTo(intent); err != nil {
			return nil, err
		}
	}

	out := make([]models.TransactionIntent, 0, len(byID))
	for _, intent := range byID {
		out = append(out, *intent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneEntry(e Entry) Entry {
	if e.Intent != nil {
		c := e.Intent.Clone()
		e.Intent = &c
	}
	if e.Status != nil {
		s := *e.Status
		e.Status = &s
	}
	return e
}
