package etl

import (
	"context"
	"time"

	"github.com/c360/graphsync/cache"
	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/health"
	"github.com/c360/graphsync/integrity"
)

// CustomerIntegrityFloor is the customer sync percentage below which
// GetSyncStatus recommends a full sync.
const CustomerIntegrityFloor = 90.0

// Status recommendations.
const (
	RecommendGraphDown    = "Graph connection failed - check service status"
	RecommendInitialSync  = "No full sync recorded - consider running initial sync"
	RecommendCustomerSync = "Customer sync integrity below 90% - run full sync"
)

// Keys of Status.LastSyncs.
const (
	LastFullSync        = "full_sync"
	LastIncrementalSync = "incremental_sync"
	LastKnowledgeSync   = "knowledge_sync"
)

// FullSystemSync runs the full customer sync, the full conversation sync and
// then the knowledge sync when one is configured. The full sync checkpoint
// is written only when every step finished without a run-level error.
func (e *Engine) FullSystemSync(ctx context.Context) SystemReport {
	var report SystemReport
	logger, finish, ok := e.begin(KindFullSystem, &report.Run)
	if !ok {
		return report
	}
	defer finish()
	logger.Info("full system sync started")

	report.Customers = e.FullSyncCustomers(ctx, e.cfg.CustomerBatchSize)
	report.Conversations = e.FullSyncConversations(ctx, e.cfg.ConversationBatchSize)

	var errs []error
	if report.Customers.Err != nil {
		errs = append(errs, report.Customers.Err)
	}
	if report.Conversations.Err != nil {
		errs = append(errs, report.Conversations.Err)
	}

	if e.knowledge != nil {
		kr := e.knowledge.Sync(ctx)
		report.Knowledge = &kr
		switch {
		case kr.Err != nil:
			errs = append(errs, kr.Err)
		case !kr.Success:
			errs = append(errs, errors.Wrap(errors.New("knowledge documents failed"), "Engine", "FullSystemSync", "knowledge sync"))
		}
	}

	report.OverallSuccess = len(errs) == 0
	if !report.OverallSuccess {
		report.fail(errors.Join(errs...))
		logger.Warn("full system sync finished with errors", "error", report.Error)
		return report
	}

	if e.cache != nil {
		if !e.cache.SetCheckpoint(ctx, cache.CheckpointFull, e.now()) {
			logger.Warn("full sync checkpoint not written")
		}
	}
	logger.Info("full system sync finished",
		"customers", report.Customers.Synced, "conversations", report.Conversations.Synced)
	return report
}

// ValidateSyncIntegrity compares relational and graph counts.
func (e *Engine) ValidateSyncIntegrity(ctx context.Context) integrity.Report {
	return e.validator.Validate(ctx)
}

// GetSyncStatus probes the stores, reads the checkpoints, validates
// integrity and, when configured, reports the knowledge base.
func (e *Engine) GetSyncStatus(ctx context.Context) Status {
	status := Status{
		Connections:     map[string]health.Status{},
		LastSyncs:       map[string]*time.Time{},
		Recommendations: []string{},
	}

	status.Health = e.monitor.Check(ctx)
	for _, sub := range status.Health.SubStatuses {
		status.Connections[sub.Component] = sub
	}

	full := e.lastSync(ctx, cache.CheckpointFull)
	status.LastSyncs[LastFullSync] = full
	status.LastSyncs[LastIncrementalSync] = e.lastSync(ctx, cache.CheckpointIncremental)
	status.LastSyncs[LastKnowledgeSync] = e.lastSync(ctx, cache.CheckpointKnowledge)

	status.Integrity = e.validator.Validate(ctx)
	status.DataIntegrity = status.Integrity.SyncPercentage
	if e.knowledge != nil {
		kb := e.knowledge.Status(ctx)
		status.Knowledge = &kb
	}

	if g, ok := status.Connections["graph"]; !ok || !g.IsHealthy() {
		status.Recommendations = append(status.Recommendations, RecommendGraphDown)
	}
	if full == nil {
		status.Recommendations = append(status.Recommendations, RecommendInitialSync)
	}
	customers := integrity.Ratio(status.Integrity.GraphCounts[integrity.KindCustomers],
		status.Integrity.RelationalCounts[integrity.KindCustomers])
	if status.Integrity.Error == "" && customers < CustomerIntegrityFloor {
		status.Recommendations = append(status.Recommendations, RecommendCustomerSync)
	}
	return status
}

func (e *Engine) lastSync(ctx context.Context, name string) *time.Time {
	if e.cache == nil {
		return nil
	}
	cp, ok := e.cache.Checkpoint(ctx, name)
	if !ok {
		return nil
	}
	at := cp.LastRunAt
	return &at
}
