// Package projector turns relational rows into idempotent graph upserts.
//
// A projection never returns an error and never panics: the outcome of each
// row is reported in a Result so that a sync window can count failures and
// move on.
package projector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/graphsync/errors"
	"github.com/c360/graphsync/graph"
	"github.com/c360/graphsync/metric"
	"github.com/c360/graphsync/pkg/retry"
	"github.com/c360/graphsync/relational"
)

// Result is the outcome of projecting one row.
type Result struct {
	OK                bool
	Err               error
	Statements        int
	MessagesProjected int
}

// Projector writes customers and conversations into a graph.Store.
type Projector struct {
	store   graph.Store
	retry   retry.Config
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures a Projector.
type Option func(*Projector)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Projector) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records every statement outcome.
func WithMetrics(metrics *metric.Metrics) Option {
	return func(p *Projector) {
		p.metrics = metrics
	}
}

// WithRetry replaces the per-statement retry policy. Only transient errors
// are retried regardless of cfg.Retryable.
func WithRetry(cfg retry.Config) Option {
	return func(p *Projector) {
		cfg.Retryable = errors.IsTransient
		p.retry = cfg
	}
}

// New creates a Projector over store.
func New(store graph.Store, opts ...Option) *Projector {
	p := &Projector{
		store:  store,
		retry:  retry.StoreWrite(errors.IsTransient),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "projector")
	return p
}

// ProjectCustomer upserts one Customer node.
func (p *Projector) ProjectCustomer(ctx context.Context, c relational.Customer) (res Result) {
	defer recoverInto(&res)

	if c.ID <= 0 {
		return failed(invalidRow("ProjectCustomer", "customer id %d", c.ID))
	}
	if err := p.write(ctx, CustomerStatement(c), &res); err != nil {
		p.logger.Debug("customer projection failed", "customer_id", c.ID, "error", err)
		res.Err = err
		return res
	}
	res.OK = true
	return res
}

// ProjectConversation upserts a Conversation with its edge to the customer,
// then every message that has an intent, then the resolution if the
// conversation is resolved. The first failing statement ends the projection.
func (p *Projector) ProjectConversation(ctx context.Context, c relational.Conversation, messages []relational.Message) (res Result) {
	defer recoverInto(&res)

	if c.ID <= 0 || c.CustomerID <= 0 {
		return failed(invalidRow("ProjectConversation", "conversation %d of customer %d", c.ID, c.CustomerID))
	}
	for _, m := range messages {
		if m.ID <= 0 || m.ConversationID != c.ID {
			return failed(invalidRow("ProjectConversation", "message %d of conversation %d", m.ID, m.ConversationID))
		}
	}

	if err := p.write(ctx, ConversationStatement(c), &res); err != nil {
		p.logger.Debug("conversation projection failed", "conversation_id", c.ID, "customer_id", c.CustomerID, "error", err)
		res.Err = err
		return res
	}

	for _, m := range messages {
		stmt, ok := MessageStatement(m)
		if !ok {
			continue
		}
		if err := p.write(ctx, stmt, &res); err != nil {
			p.logger.Debug("message projection failed", "conversation_id", c.ID, "message_id", m.ID, "error", err)
			res.Err = err
			return res
		}
		res.MessagesProjected++
	}

	if stmt, ok := ResolutionStatement(c); ok {
		if err := p.write(ctx, stmt, &res); err != nil {
			p.logger.Debug("resolution projection failed", "conversation_id", c.ID, "error", err)
			res.Err = err
			return res
		}
	}

	res.OK = true
	return res
}

// write runs stmt with retry. A statement that returns no records matched no
// parent node and fails with ErrMissingParent.
func (p *Projector) write(ctx context.Context, stmt graph.Statement, res *Result) error {
	sum, err := retry.DoWithResult(ctx, p.retry, func() (graph.Summary, error) {
		return p.store.Write(ctx, stmt)
	})
	res.Statements++
	if err == nil && sum.Records == 0 {
		err = errors.WrapInvalid(errors.ErrMissingParent, "Projector", "write", stmt.Name)
	}
	p.metrics.RecordGraphWrite(stmt.Name, err == nil)
	return err
}

func failed(err error) Result {
	return Result{Err: err}
}

func invalidRow(method, format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: "+format, append([]any{errors.ErrMalformedRecord}, args...)...),
		"Projector", method, "row validation")
}

func recoverInto(res *Result) {
	if r := recover(); r != nil {
		*res = Result{Err: fmt.Errorf("projection panic: %v", r)}
	}
}
