package etl

import (
	"context"
	"fmt"

	"github.com/c360/graphsync/errors"
)

// job is one queued real-time sync.
type job struct {
	entity string
	id     int64
}

func (j job) String() string {
	return fmt.Sprintf("%s:%d", j.entity, j.id)
}

// SyncCustomerRealtime projects one customer and invalidates its cache
// entries. It returns false when the customer does not exist or could not
// be projected.
func (e *Engine) SyncCustomerRealtime(ctx context.Context, customerID int64) bool {
	logger := e.logger.With("kind", KindRealtime, "entity", EntityCustomer, "customer_id", customerID)

	c, err := e.reader.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, errors.ErrRecordNotFound) {
			logger.Debug("customer not found")
		} else {
			logger.Warn("customer read failed", "error", err)
		}
		e.metrics.RecordRecords(KindRealtime, EntityCustomer, "failed", 1)
		return false
	}

	if !e.projectCustomer(logger)(ctx, c) {
		e.metrics.RecordRecords(KindRealtime, EntityCustomer, "failed", 1)
		return false
	}
	e.invalidateCustomer(ctx, customerID)
	e.metrics.RecordRecords(KindRealtime, EntityCustomer, "synced", 1)
	return true
}

// SyncConversationRealtime projects one conversation with its messages and
// invalidates the owning customer's cache entries.
func (e *Engine) SyncConversationRealtime(ctx context.Context, conversationID int64) bool {
	logger := e.logger.With("kind", KindRealtime, "entity", EntityConversation, "conversation_id", conversationID)

	c, err := e.reader.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, errors.ErrRecordNotFound) {
			logger.Debug("conversation not found")
		} else {
			logger.Warn("conversation read failed", "error", err)
		}
		e.metrics.RecordRecords(KindRealtime, EntityConversation, "failed", 1)
		return false
	}

	if _, ok := e.projectConversation(ctx, logger, c); !ok {
		e.metrics.RecordRecords(KindRealtime, EntityConversation, "failed", 1)
		return false
	}
	e.invalidateCustomer(ctx, c.CustomerID)
	e.metrics.RecordRecords(KindRealtime, EntityConversation, "synced", 1)
	return true
}

// EnqueueCustomer queues a real-time customer sync. It returns
// worker.ErrQueueFull when the queue is full.
func (e *Engine) EnqueueCustomer(customerID int64) error {
	return e.pool.Submit(job{entity: EntityCustomer, id: customerID})
}

// EnqueueConversation queues a real-time conversation sync.
func (e *Engine) EnqueueConversation(conversationID int64) error {
	return e.pool.Submit(job{entity: EntityConversation, id: conversationID})
}

func (e *Engine) process(ctx context.Context, j job) error {
	var ok bool
	switch j.entity {
	case EntityCustomer:
		ok = e.SyncCustomerRealtime(ctx, j.id)
	case EntityConversation:
		ok = e.SyncConversationRealtime(ctx, j.id)
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown entity %q", j.entity), "Engine", "process", "dispatch job")
	}
	if !ok {
		return fmt.Errorf("real-time sync of %s failed", j)
	}
	return nil
}
