/*
Package jobqueue configuration - tunable parameters for the River job queue.

Reconciliation is a safety net, not a correctness mechanism: the engine's
counters are already adjusted atomically in-line. The sweep exists to heal
drift introduced by writes that bypass the engine (manual fixes, imports,
partial restores). Tune the interval accordingly; more frequent sweeps only
buy faster healing, never different results.
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	// MaxWorkers is the number of concurrent workers processing jobs
	MaxWorkers int

	// MaxRetries is the maximum retry attempts per job
	MaxRetries int

	// JobTimeout is the maximum time a single reconciliation can run
	JobTimeout time.Duration

	// ReconcileInterval is how often the full-sweep periodic job runs
	ReconcileInterval time.Duration
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:        4,
		MaxRetries:        10,
		JobTimeout:        2 * time.Minute,
		ReconcileInterval: 10 * time.Minute,
	}
}

// RiverQueueConfig returns the River queue configuration
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {MaxWorkers: c.MaxWorkers},
	}
}
