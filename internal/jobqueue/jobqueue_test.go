package jobqueue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterReconcileArgs(t *testing.T) {
	assert.Equal(t, "counter_reconcile", CounterReconcileArgs{}.Kind())

	t.Run("FullSweepOmitsPromptID", func(t *testing.T) {
		data, err := json.Marshal(CounterReconcileArgs{})
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(data))
	})

	t.Run("PerPromptRoundTrip", func(t *testing.T) {
		id := uuid.New()
		data, err := json.Marshal(CounterReconcileArgs{PromptID: &id})
		require.NoError(t, err)

		var decoded CounterReconcileArgs
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.NotNil(t, decoded.PromptID)
		assert.Equal(t, id, *decoded.PromptID)
	})
}

func TestDefaultQueueConfig(t *testing.T) {
	config := DefaultQueueConfig()

	assert.Equal(t, 4, config.MaxWorkers)
	assert.Equal(t, 10, config.MaxRetries)
	assert.Equal(t, 2*time.Minute, config.JobTimeout)
	assert.Equal(t, 10*time.Minute, config.ReconcileInterval)

	queues := config.RiverQueueConfig()
	require.Contains(t, queues, river.QueueDefault)
	assert.Equal(t, 4, queues[river.QueueDefault].MaxWorkers)
}

func TestWorkerTimeout(t *testing.T) {
	w := &CounterReconcileWorker{config: DefaultQueueConfig()}
	assert.Equal(t, 2*time.Minute, w.Timeout(nil))
}
