package metrics

import (
	"github.com/keygate-hq/keygate-signer/pkg/events"
	"github.com/keygate-hq/keygate-signer/pkg/models"
)

// Recorder turns lifecycle events into metric updates
type Recorder struct{}

var _ events.Emitter = Recorder{}

func (Recorder) Emit(evt events.Event) {
	switch e := evt.(type) {
	case events.IntentProposed:
		IntentsProposed.WithLabelValues(string(e.Intent.Network), e.Intent.Asset).Inc()
		IntentsByState.WithLabelValues(string(models.StatePending)).Inc()
	case events.VoteRecorded:
		VotesRecorded.WithLabelValues(voteLabel(e.Approve)).Inc()
	case events.StatusChanged:
		Transitions.WithLabelValues(string(e.From), string(e.To.State)).Inc()
		IntentsByState.WithLabelValues(string(e.From)).Dec()
		IntentsByState.WithLabelValues(string(e.To.State)).Inc()
	}
}

// SetStateCounts overwrites the per-state gauge, e.g. after replaying a journal
func SetStateCounts(counts map[models.State]int) {
	for _, state := range []models.State{
		models.StatePending,
		models.StateInProgress,
		models.StateCompleted,
		models.StateRejected,
		models.StateFailed,
	} {
		IntentsByState.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func voteLabel(approve bool) string {
	if approve {
		return "approve"
	}
	return "reject"
}
