package metrics

import (
	"testing"

	"github.com/keygate-hq/keygate-signer/pkg/events"
	"github.com/keygate-hq/keygate-signer/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCountsTransitions(t *testing.T) {
	before := testutil.ToFloat64(Transitions.WithLabelValues("pending", "in_progress"))

	Recorder{}.Emit(events.StatusChanged{
		IntentID: 1,
		From:     models.StatePending,
		To:       models.Status{State: models.StateInProgress},
	})

	after := testutil.ToFloat64(Transitions.WithLabelValues("pending", "in_progress"))
	assert.Equal(t, before+1, after)
}

func TestSetStateCounts(t *testing.T) {
	SetStateCounts(map[models.State]int{models.StatePending: 3, models.StateCompleted: 2})

	assert.Equal(t, 3.0, testutil.ToFloat64(IntentsByState.WithLabelValues("pending")))
	assert.Equal(t, 2.0, testutil.ToFloat64(IntentsByState.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(IntentsByState.WithLabelValues("failed")))
}
