package etl

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/relational"
)

// window is one page of a full sync.
type window struct {
	offset, limit int
}

// pager walks [0, total) in windows of size batch, waiting on a limiter
// before each one.
type pager struct {
	total, batch int
	limiter      *rate.Limiter
}

func (e *Engine) newPager(total, batch int) *pager {
	limit := rate.Inf
	if e.cfg.WindowPause > 0 {
		limit = rate.Every(e.cfg.WindowPause)
	}
	return &pager{total: total, batch: batch, limiter: rate.NewLimiter(limit, 1)}
}

// walk calls fn for each window until the rows run out, fn reports an empty
// window or ctx is cancelled. It returns the number of windows attempted.
func (p *pager) walk(ctx context.Context, fn func(w window) (empty bool)) (int, error) {
	batches := 0
	for offset := 0; offset < p.total; offset += p.batch {
		if err := p.limiter.Wait(ctx); err != nil {
			return batches, errors.Wrap(err, "Engine", "walk", "window throttle")
		}
		batches++
		if fn(window{offset: offset, limit: p.batch}) {
			break
		}
	}
	return batches, nil
}

// remaining is the number of rows a failed window accounts for.
func (w window) remaining(total int) int {
	return min(w.limit, total-w.offset)
}

// FullSyncCustomers projects every customer, batchSize rows per window. A
// window that cannot be read counts all of its rows as failed and the run
// continues with the next window.
func (e *Engine) FullSyncCustomers(ctx context.Context, batchSize int) CustomerReport {
	report := CustomerReport{BatchSize: batchSize}
	logger, finish, ok := e.begin(KindFullCustomers, &report.Run)
	if !ok {
		return report
	}
	defer finish()
	logger = logger.With("entity", EntityCustomer)

	if batchSize <= 0 {
		report.fail(errors.WrapInvalid(errors.ErrInvalidBatchSize, "Engine", "FullSyncCustomers", "batch size"))
		return report
	}

	total, err := e.reader.CountCustomers(ctx)
	if err != nil {
		report.fail(errors.Wrap(err, "Engine", "FullSyncCustomers", "count customers"))
		logger.Error("full customer sync failed", "error", err)
		return report
	}
	report.Total = total
	logger.Info("full customer sync started", "total", total, "batch_size", batchSize)

	batches, err := e.newPager(total, batchSize).walk(ctx, func(w window) bool {
		rows, err := e.reader.ListCustomers(ctx, w.offset, w.limit)
		if err != nil {
			n := w.remaining(total)
			report.Failed += n
			e.metrics.RecordRecords(KindFullCustomers, EntityCustomer, "failed", n)
			logger.Warn("customer window failed", "offset", w.offset, "limit", w.limit, "error", err)
			return false
		}
		if len(rows) == 0 {
			return true
		}
		synced, failed := each(ctx, e.cfg.Concurrency, rows, e.projectCustomer(logger))
		report.Synced += synced
		report.Failed += failed
		e.metrics.RecordRecords(KindFullCustomers, EntityCustomer, "synced", synced)
		e.metrics.RecordRecords(KindFullCustomers, EntityCustomer, "failed", failed)
		logger.Debug("customer window done", "offset", w.offset, "synced", synced, "failed", failed)
		return false
	})
	report.BatchesProcessed = batches
	if err != nil {
		report.fail(err)
	}

	if e.cache != nil {
		e.cache.InvalidateGraphAggregates(ctx)
	}
	report.SuccessRate = successRate(report.Synced, report.Total)

	logger.Info("full customer sync finished",
		"synced", report.Synced, "failed", report.Failed,
		"batches", report.BatchesProcessed, "error", report.Error)
	return report
}

// FullSyncConversations projects every conversation together with its
// messages, batchSize rows per window.
func (e *Engine) FullSyncConversations(ctx context.Context, batchSize int) ConversationReport {
	report := ConversationReport{BatchSize: batchSize}
	logger, finish, ok := e.begin(KindFullConversations, &report.Run)
	if !ok {
		return report
	}
	defer finish()
	logger = logger.With("entity", EntityConversation)

	if batchSize <= 0 {
		report.fail(errors.WrapInvalid(errors.ErrInvalidBatchSize, "Engine", "FullSyncConversations", "batch size"))
		return report
	}

	total, err := e.reader.CountConversations(ctx)
	if err != nil {
		report.fail(errors.Wrap(err, "Engine", "FullSyncConversations", "count conversations"))
		logger.Error("full conversation sync failed", "error", err)
		return report
	}
	report.Total = total
	logger.Info("full conversation sync started", "total", total, "batch_size", batchSize)

	batches, err := e.newPager(total, batchSize).walk(ctx, func(w window) bool {
		rows, err := e.reader.ListConversations(ctx, w.offset, w.limit)
		if err != nil {
			n := w.remaining(total)
			report.Failed += n
			e.metrics.RecordRecords(KindFullConversations, EntityConversation, "failed", n)
			logger.Warn("conversation window failed", "offset", w.offset, "limit", w.limit, "error", err)
			return false
		}
		if len(rows) == 0 {
			return true
		}

		counts := make([]int, len(rows))
		indexed := make([]int, len(rows))
		for i := range indexed {
			indexed[i] = i
		}
		synced, failed := each(ctx, e.cfg.Concurrency, indexed, func(ctx context.Context, i int) bool {
			n, ok := e.projectConversation(ctx, logger, rows[i])
			counts[i] = n
			return ok
		})
		for _, n := range counts {
			report.SyncedMessages += n
		}
		report.Synced += synced
		report.Failed += failed
		e.metrics.RecordRecords(KindFullConversations, EntityConversation, "synced", synced)
		e.metrics.RecordRecords(KindFullConversations, EntityConversation, "failed", failed)
		logger.Debug("conversation window done", "offset", w.offset, "synced", synced, "failed", failed)
		return false
	})
	report.BatchesProcessed = batches
	if err != nil {
		report.fail(err)
	}
	report.SuccessRate = successRate(report.Synced, report.Total)

	logger.Info("full conversation sync finished",
		"synced", report.Synced, "failed", report.Failed, "messages", report.SyncedMessages,
		"batches", report.BatchesProcessed, "error", report.Error)
	return report
}

func (e *Engine) projectCustomer(logger *slog.Logger) func(context.Context, relational.Customer) bool {
	return func(ctx context.Context, c relational.Customer) bool {
		res := e.projector.ProjectCustomer(ctx, c)
		if !res.OK {
			logger.Warn("customer projection failed", "customer_id", c.ID, "error", res.Err)
		}
		return res.OK
	}
}

// projectConversation loads the messages of c and projects both. On success
// it returns the number of messages the conversation carries.
func (e *Engine) projectConversation(ctx context.Context, logger *slog.Logger, c relational.Conversation) (int, bool) {
	messages, err := e.reader.MessagesForConversation(ctx, c.ID)
	if err != nil {
		logger.Warn("message read failed", "conversation_id", c.ID, "error", err)
		return 0, false
	}
	res := e.projector.ProjectConversation(ctx, c, messages)
	if !res.OK {
		logger.Warn("conversation projection failed", "conversation_id", c.ID, "customer_id", c.CustomerID, "error", res.Err)
		return 0, false
	}
	return len(messages), true
}
