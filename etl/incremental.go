package etl

import (
	"context"
	"time"

	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/relational"
)

// IncrementalSync projects customers updated and conversations started or
// ended at or after since. A zero since means the configured lookback
// before now. Each synced customer's cache entries are invalidated.
func (e *Engine) IncrementalSync(ctx context.Context, since time.Time) IncrementalReport {
	report := IncrementalReport{SyncType: KindIncremental}
	logger, finish, ok := e.begin(KindIncremental, &report.Run)
	if !ok {
		return report
	}
	defer finish()

	if since.IsZero() {
		since = e.now().Add(-e.cfg.Lookback)
	}
	report.Since = since.UTC()
	logger = logger.With("since", report.Since)

	customers, err := e.reader.CustomersUpdatedSince(ctx, since)
	if err != nil {
		report.fail(errors.Wrap(err, "Engine", "IncrementalSync", "read changed customers"))
		logger.Error("incremental sync failed", "error", err)
		return report
	}
	conversations, err := e.reader.ConversationsChangedSince(ctx, since)
	if err != nil {
		report.fail(errors.Wrap(err, "Engine", "IncrementalSync", "read changed conversations"))
		logger.Error("incremental sync failed", "error", err)
		return report
	}
	logger.Info("incremental sync started", "customers", len(customers), "conversations", len(conversations))

	project := e.projectCustomer(logger.With("entity", EntityCustomer))
	report.CustomersSynced, report.CustomersFailed = each(ctx, e.cfg.Concurrency, customers,
		func(ctx context.Context, c relational.Customer) bool {
			if !project(ctx, c) {
				return false
			}
			e.invalidateCustomer(ctx, c.ID)
			return true
		})

	convLogger := logger.With("entity", EntityConversation)
	report.ConversationsSynced, report.ConversationsFailed = each(ctx, e.cfg.Concurrency, conversations,
		func(ctx context.Context, c relational.Conversation) bool {
			if _, ok := e.projectConversation(ctx, convLogger, c); !ok {
				return false
			}
			e.invalidateCustomer(ctx, c.CustomerID)
			return true
		})

	e.metrics.RecordRecords(KindIncremental, EntityCustomer, "synced", report.CustomersSynced)
	e.metrics.RecordRecords(KindIncremental, EntityCustomer, "failed", report.CustomersFailed)
	e.metrics.RecordRecords(KindIncremental, EntityConversation, "synced", report.ConversationsSynced)
	e.metrics.RecordRecords(KindIncremental, EntityConversation, "failed", report.ConversationsFailed)

	if err := ctx.Err(); err != nil {
		report.fail(errors.Wrap(err, "Engine", "IncrementalSync", "project changes"))
	}

	logger.Info("incremental sync finished",
		"customers_synced", report.CustomersSynced, "customers_failed", report.CustomersFailed,
		"conversations_synced", report.ConversationsSynced, "conversations_failed", report.ConversationsFailed,
		"error", report.Error)
	return report
}

func (e *Engine) invalidateCustomer(ctx context.Context, customerID int64) {
	if e.cache != nil {
		e.cache.InvalidateCustomer(ctx, customerID)
	}
}
