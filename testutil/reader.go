package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/c360/graphsync/relational"
)

// Entities used to select fault-injection targets and offset logs.
const (
	EntityCustomer     = "customer"
	EntityConversation = "conversation"
)

// Reader is an in-memory relational.Reader with fault injection.
type Reader struct {
	mu            sync.RWMutex
	customers     map[int64]relational.Customer
	conversations map[int64]relational.Conversation
	messages      map[int64][]relational.Message

	windowErrs  map[string]map[int]error
	recordErrs  map[string]map[int64]error
	messageErrs map[int64]error
	countErr    error
	changesErr  error
	pingErr     error

	offsets map[string][]int
}

var _ relational.Reader = (*Reader)(nil)

// NewReader creates an empty Reader.
func NewReader() *Reader {
	return &Reader{
		customers:     make(map[int64]relational.Customer),
		conversations: make(map[int64]relational.Conversation),
		messages:      make(map[int64][]relational.Message),
		windowErrs:    map[string]map[int]error{EntityCustomer: {}, EntityConversation: {}},
		recordErrs:    map[string]map[int64]error{EntityCustomer: {}, EntityConversation: {}},
		messageErrs:   make(map[int64]error),
		offsets:       make(map[string][]int),
	}
}

// AddCustomers inserts or replaces customers.
func (r *Reader) AddCustomers(customers ...relational.Customer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range customers {
		r.customers[c.ID] = c
	}
}

// AddConversations inserts or replaces conversations.
func (r *Reader) AddConversations(conversations ...relational.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range conversations {
		r.conversations[c.ID] = c
	}
}

// AddMessages appends messages to their conversations.
func (r *Reader) AddMessages(messages ...relational.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range messages {
		r.messages[m.ConversationID] = append(r.messages[m.ConversationID], m)
	}
}

// FailCustomerWindow makes ListCustomers fail at offset.
func (r *Reader) FailCustomerWindow(offset int, err error) {
	r.failWindow(EntityCustomer, offset, err)
}

// FailConversationWindow makes ListConversations fail at offset.
func (r *Reader) FailConversationWindow(offset int, err error) {
	r.failWindow(EntityConversation, offset, err)
}

func (r *Reader) failWindow(entity string, offset int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windowErrs[entity][offset] = err
}

// FailCustomer makes GetCustomer fail for id.
func (r *Reader) FailCustomer(id int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordErrs[EntityCustomer][id] = err
}

// FailConversation makes GetConversation fail for id.
func (r *Reader) FailConversation(id int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordErrs[EntityConversation][id] = err
}

// FailMessages makes MessagesForConversation fail for conversationID.
func (r *Reader) FailMessages(conversationID int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messageErrs[conversationID] = err
}

// SetCountError makes every Count call fail with err. Nil clears it.
func (r *Reader) SetCountError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countErr = err
}

// SetChangesError makes both change-feed queries fail with err. Nil clears it.
func (r *Reader) SetChangesError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changesErr = err
}

// SetPingError makes Ping fail with err. Nil clears it.
func (r *Reader) SetPingError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pingErr = err
}

// ListedOffsets returns the offsets requested for entity in call order.
func (r *Reader) ListedOffsets(entity string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.offsets[entity])
}

// Ping implements relational.Reader.
func (r *Reader) Ping(_ context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pingErr
}

// CountCustomers implements relational.Reader.
func (r *Reader) CountCustomers(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	return len(r.customers), nil
}

// CountConversations implements relational.Reader.
func (r *Reader) CountConversations(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	return len(r.conversations), nil
}

// CountMessages implements relational.Reader.
func (r *Reader) CountMessages(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.countErr != nil {
		return 0, r.countErr
	}
	n := 0
	for _, msgs := range r.messages {
		n += len(msgs)
	}
	return n, nil
}

// ListCustomers implements relational.Reader.
func (r *Reader) ListCustomers(ctx context.Context, offset, limit int) ([]relational.Customer, error) {
	if err := r.window(ctx, EntityCustomer, offset); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return page(sortedByID(r.customers), offset, limit), nil
}

// ListConversations implements relational.Reader.
func (r *Reader) ListConversations(ctx context.Context, offset, limit int) ([]relational.Conversation, error) {
	if err := r.window(ctx, EntityConversation, offset); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return page(sortedByID(r.conversations), offset, limit), nil
}

func (r *Reader) window(ctx context.Context, entity string, offset int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offsets[entity] = append(r.offsets[entity], offset)
	return r.windowErrs[entity][offset]
}

// CustomersUpdatedSince implements relational.Reader.
func (r *Reader) CustomersUpdatedSince(_ context.Context, since time.Time) ([]relational.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.changesErr != nil {
		return nil, r.changesErr
	}
	var out []relational.Customer
	for _, c := range sortedByID(r.customers) {
		if !c.UpdatedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ConversationsChangedSince implements relational.Reader.
func (r *Reader) ConversationsChangedSince(_ context.Context, since time.Time) ([]relational.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.changesErr != nil {
		return nil, r.changesErr
	}
	var out []relational.Conversation
	for _, c := range sortedByID(r.conversations) {
		if !c.StartedAt.Before(since) || (c.EndedAt != nil && !c.EndedAt.Before(since)) {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetCustomer implements relational.Reader.
func (r *Reader) GetCustomer(_ context.Context, id int64) (relational.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.recordErrs[EntityCustomer][id]; err != nil {
		return relational.Customer{}, err
	}
	c, ok := r.customers[id]
	if !ok {
		return relational.Customer{}, relational.ErrNotFound
	}
	return c, nil
}

// GetConversation implements relational.Reader.
func (r *Reader) GetConversation(_ context.Context, id int64) (relational.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.recordErrs[EntityConversation][id]; err != nil {
		return relational.Conversation{}, err
	}
	c, ok := r.conversations[id]
	if !ok {
		return relational.Conversation{}, relational.ErrNotFound
	}
	return c, nil
}

// MessagesForConversation implements relational.Reader.
func (r *Reader) MessagesForConversation(_ context.Context, conversationID int64) ([]relational.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.messageErrs[conversationID]; err != nil {
		return nil, err
	}
	msgs := slices.Clone(r.messages[conversationID])
	slices.SortStableFunc(msgs, func(a, b relational.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return msgs, nil
}

func sortedByID[T any](m map[int64]T) []T {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func page[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return nil
	}
	end := min(offset+limit, len(rows))
	return slices.Clone(rows[offset:end])
}
