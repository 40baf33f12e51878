// Package store owns the canonical collection of transaction intents.
// Mutations of one intent are serialized by a per-intent lock; intents with
// different ids never wait on each other beyond the brief index lookup.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/keygate-hq/keygate-signer/pkg/amount"
	"github.com/keygate-hq/keygate-signer/pkg/models"
)

// InterruptedDetail is the detail attached to intents found in progress on open
const InterruptedDetail = "execution interrupted, retry execute"

type record struct {
	mu     sync.Mutex
	intent models.TransactionIntent
}

// Draft holds the caller supplied fields of a new intent
type Draft struct {
	Recipient string
	Asset     string
	Network   models.Network
	Kind      models.Kind
	Amount    amount.Amount
	RemoteID  uint64
}

// Validate checks the draft before an id is allocated
func (d Draft) Validate() error {
	if d.Amount.Zero() {
		return fmt.Errorf("%w: amount must be greater than 0", models.ErrInvalidAmount)
	}
	if strings.TrimSpace(d.Recipient) == "" {
		return fmt.Errorf("%w: recipient is empty", models.ErrInvalidRecipient)
	}
	return nil
}

// Store holds all known intents
type Store struct {
	mu      sync.RWMutex // guards records and lastID
	records map[uint64]*record
	lastID  uint64

	jmu     sync.Mutex // guards seq and serializes journal appends
	seq     uint64
	journal Journal
}

// New returns an empty store journaling to j
func New(j Journal) *Store {
	if j == nil {
		j = NewMemJournal()
	}
	return &Store{
		records: make(map[uint64]*record),
		journal: j,
	}
}

// Open rebuilds a store by replaying the journal. Intents that were in
// progress when the journal stopped are returned to pending.
func Open(j Journal) (*Store, error) {
	s := New(j)

	entries, err := s.journal.Entries()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	for _, e := range entries {
		if e.Seq <= s.seq {
			return nil, fmt.Errorf("journal out of order at seq %d", e.Seq)
		}
		s.seq = e.Seq

		rec, ok := s.records[e.IntentID]
		if !ok {
			if e.Type != EntryProposed {
				return nil, fmt.Errorf("entry %d references unknown intent %d", e.Seq, e.IntentID)
			}
			rec = &record{}
			s.records[e.IntentID] = rec
		}
		if err := e.ApplyTo(&rec.intent); err != nil {
			return nil, err
		}
		if e.IntentID > s.lastID {
			s.lastID = e.IntentID
		}
	}

	for _, id := range s.ids() {
		rec := s.records[id]
		if rec.intent.Status.State != models.StateInProgress {
			continue
		}
		status := models.Status{State: models.StatePending, Detail: InterruptedDetail}
		if err := s.commit(Entry{Type: EntryStatus, IntentID: id, Status: &status}); err != nil {
			return nil, err
		}
		rec.intent.Status = status
	}

	return s, nil
}

// Propose validates and stores a new pending intent
func (s *Store) Propose(d Draft) (models.TransactionIntent, error) {
	if err := d.Validate(); err != nil {
		return models.TransactionIntent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.lastID + 1
	intent := models.TransactionIntent{
		ID:         id,
		RemoteID:   d.RemoteID,
		Recipient:  strings.TrimSpace(d.Recipient),
		Asset:      d.Asset,
		Network:    d.Network,
		Kind:       d.Kind,
		Amount:     d.Amount,
		Approvals:  models.NewSignerSet(),
		Rejections: models.NewSignerSet(),
		Status:     models.Status{State: models.StatePending, Detail: "awaiting approvals"},
	}

	if err := s.commit(Entry{Type: EntryProposed, IntentID: id, Intent: &intent}); err != nil {
		return models.TransactionIntent{}, err
	}

	s.records[id] = &record{intent: intent}
	s.lastID = id
	return intent.Clone(), nil
}

// Get returns a copy of the intent
func (s *Store) Get(id uint64) (models.TransactionIntent, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return models.TransactionIntent{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.intent.Clone(), nil
}

// RecordVote adds signer to the approvals or rejections of the intent,
// removing it from the other set first. Votes on terminal intents fail with
// ErrAlreadyTerminal and leave the sets untouched.
func (s *Store) RecordVote(id uint64, signer models.Signer, approve bool) (models.TransactionIntent, error) {
	if strings.TrimSpace(string(signer)) == "" {
		return models.TransactionIntent{}, fmt.Errorf("%w: signer must not be empty", models.ErrInvalidSigner)
	}

	rec, err := s.lookup(id)
	if err != nil {
		return models.TransactionIntent{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.intent.Terminal() {
		return rec.intent.Clone(), fmt.Errorf("%w: intent %d is %s", models.ErrAlreadyTerminal, id, rec.intent.Status.State)
	}

	// Idempotent: nothing to journal when the vote is already in place
	if alreadyVoted(&rec.intent, signer, approve) {
		return rec.intent.Clone(), nil
	}

	if err := s.commit(Entry{Type: EntryVote, IntentID: id, Signer: signer, Approve: approve}); err != nil {
		return models.TransactionIntent{}, err
	}
	applyVote(&rec.intent, signer, approve)
	return rec.intent.Clone(), nil
}

// TransitionFunc decides the next status of an intent from a consistent
// snapshot. Returning an error aborts the transition; the returned status is
// ignored in that case.
type TransitionFunc func(current models.TransactionIntent) (models.Status, error)

// Transition runs fn under the intent's lock and commits the status it
// returns. The returned intent reflects the state after the call, whether or
// not fn aborted.
func (s *Store) Transition(id uint64, fn TransitionFunc) (models.TransactionIntent, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return models.TransactionIntent{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	next, err := fn(rec.intent.Clone())
	if err != nil {
		return rec.intent.Clone(), err
	}

	if next == rec.intent.Status {
		return rec.intent.Clone(), nil
	}
	if rec.intent.Terminal() {
		return rec.intent.Clone(), fmt.Errorf("%w: intent %d is %s", models.ErrAlreadyTerminal, id, rec.intent.Status.State)
	}

	if err := s.commit(Entry{Type: EntryStatus, IntentID: id, Status: &next}); err != nil {
		return rec.intent.Clone(), err
	}
	rec.intent.Status = next
	return rec.intent.Clone(), nil
}

// List returns copies of all intents ordered by id
func (s *Store) List() []models.TransactionIntent {
	ids := s.ids()
	out := make([]models.TransactionIntent, 0, len(ids))
	for _, id := range ids {
		if intent, err := s.Get(id); err == nil {
			out = append(out, intent)
		}
	}
	return out
}

// Len returns the number of stored intents
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// CountByState returns how many intents sit in each state
func (s *Store) CountByState() map[models.State]int {
	counts := make(map[models.State]int)
	for _, intent := range s.List() {
		counts[intent.Status.State]++
	}
	return counts
}

// Journal returns the journal backing the store
func (s *Store) Journal() Journal {
	return s.journal
}

// Close closes the underlying journal
func (s *Store) Close() error {
	return s.journal.Close()
}

func (s *Store) lookup(id uint64) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrNotFound, id)
	}
	return rec, nil
}

func (s *Store) ids() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// commit assigns the next sequence number and appends the entry
func (s *Store) commit(e Entry) error {
	s.jmu.Lock()
	defer s.jmu.Unlock()

	e.Seq = s.seq + 1
	if err := s.journal.Append(e); err != nil {
		return fmt.Errorf("failed to journal %s entry for intent %d: %w", e.Type, e.IntentID, err)
	}
	s.seq = e.Seq
	return nil
}

func applyVote(intent *models.TransactionIntent, signer models.Signer, approve bool) {
	if intent.Approvals == nil {
		intent.Approvals = models.NewSignerSet()
	}
	if intent.Rejections == nil {
		intent.Rejections = models.NewSignerSet()
	}
	if approve {
		delete(intent.Rejections, signer)
		intent.Approvals[signer] = struct{}{}
		return
	}
	delete(intent.Approvals, signer)
	intent.Rejections[signer] = struct{}{}
}

func alreadyVoted(intent *models.TransactionIntent, signer models.Signer, approve bool) bool {
	if approve {
		return intent.Approvals.Has(signer) && !intent.Rejections.Has(signer)
	}
	return intent.Rejections.Has(signer) && !intent.Approvals.Has(signer)
}
