package store

import (
	"path/filepath"
	"testing"

	"github.com/keygate-hq/keygate-signer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")

	journal, err := NewLevelJournal(path)
	require.NoError(t, err)

	s := New(journal)
	intent, err := s.Propose(transferDraft("abc", 100))
	require.NoError(t, err)
	_, err = s.RecordVote(intent.ID, "alice", true)
	require.NoError(t, err)
	_, err = s.RecordVote(intent.ID, "bob", false)
	require.NoError(t, err)
	_, err = s.Transition(intent.ID, setStatus(models.StateFailed, "ledger rejected transfer"))
	require.NoError(t, err)
	want := s.List()
	require.NoError(t, s.Close())

	reopened, err := NewLevelJournal(path)
	require.NoError(t, err)
	defer reopened.Close()

	replayed, err := Open(reopened)
	require.NoError(t, err)
	assert.Equal(t, want, replayed.List())

	entries, err := reopened.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Seq)
	}

	records, err := reopened.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StateFailed, records[0].Status.State)
	assert.True(t, records[0].Rejections.Has("bob"))
}

func TestLevelJournalRecordsOrderedByID(t *testing.T) {
	journal, err := NewLevelJournal(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	defer journal.Close()

	s := New(journal)
	// enough ids to cross a byte boundary in the key
	for i := 0; i < 300; i++ {
		_, err := s.Propose(transferDraft("abc", 1))
		require.NoError(t, err)
	}

	records, err := journal.Records()
	require.NoError(t, err)
	require.Len(t, records, 300)
	for i, r := range records {
		assert.Equal(t, uint64(i+1), r.ID)
	}
}

func TestLevelJournalRejectsUnknownIntent(t *testing.T) {
	journal, err := NewLevelJournal(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	defer journal.Close()

	err = journal.Append(Entry{Seq: 1, Type: EntryVote, IntentID: 9, Signer: "alice", Approve: true})
	assert.Error(t, err)
}
