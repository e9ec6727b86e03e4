package etl

import (
	"time"

	"github.com/c360/graphsync/cache"
	"github.com/c360/graphsync/health"
	"github.com/c360/graphsync/integrity"
	"github.com/c360/graphsync/knowledge"
)

// Checkpoint records when a sync kind last completed.
type Checkpoint = cache.Checkpoint

// Run describes one sync run. Err is the run-level error; per-record
// failures are only counted.
type Run struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Err         error     `json:"-"`
	Error       string    `json:"error,omitempty"`
}

// OK reports whether the run finished without a run-level error.
func (r Run) OK() bool {
	return r.Err == nil
}

func (r *Run) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// CustomerReport is the outcome of FullSyncCustomers.
type CustomerReport struct {
	Run
	Total            int     `json:"total_customers"`
	Synced           int     `json:"synced_customers"`
	Failed           int     `json:"failed_customers"`
	BatchSize        int     `json:"batch_size"`
	BatchesProcessed int     `json:"batches_processed"`
	SuccessRate      float64 `json:"success_rate"`
}

// ConversationReport is the outcome of FullSyncConversations.
type ConversationReport struct {
	Run
	Total            int     `json:"total_conversations"`
	Synced           int     `json:"synced_conversations"`
	Failed           int     `json:"failed_conversations"`
	SyncedMessages   int     `json:"synced_messages"`
	BatchSize        int     `json:"batch_size"`
	BatchesProcessed int     `json:"batches_processed"`
	SuccessRate      float64 `json:"success_rate"`
}

// IncrementalReport is the outcome of IncrementalSync.
type IncrementalReport struct {
	Run
	SyncType            string    `json:"sync_type"`
	Since               time.Time `json:"since"`
	CustomersSynced     int       `json:"customers_synced"`
	ConversationsSynced int       `json:"conversations_synced"`
	CustomersFailed     int       `json:"customers_failed"`
	ConversationsFailed int       `json:"conversations_failed"`
}

// SystemReport is the outcome of FullSystemSync.
type SystemReport struct {
	Run
	Customers      CustomerReport     `json:"customers"`
	Conversations  ConversationReport `json:"conversations"`
	Knowledge      *knowledge.Report  `json:"knowledge_base,omitempty"`
	OverallSuccess bool               `json:"overall_success"`
}

// Status is the combined view returned by GetSyncStatus.
type Status struct {
	Connections     map[string]health.Status   `json:"connections"`
	LastSyncs       map[string]*time.Time      `json:"last_syncs"`
	DataIntegrity   map[integrity.Kind]float64 `json:"data_integrity"`
	Integrity       integrity.Report           `json:"integrity"`
	Knowledge       *knowledge.StatusReport    `json:"knowledge,omitempty"`
	Recommendations []string                   `json:"recommendations"`
	Health          health.Status              `json:"health"`
}

func successRate(synced, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(synced) / float64(total)
}
