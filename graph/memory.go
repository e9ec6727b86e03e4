package graph

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/c360/graphsync/errors"
)

type nodeRef struct {
	label string
	id    any
}

type edgeRef struct {
	from nodeRef
	rel  string
	to   nodeRef
}

// MemoryStore is an in-process Store. It does not evaluate Cypher: it
// recognises the projection statements by Name and applies the same MERGE
// semantics to a map of nodes keyed by label and identity property.
type MemoryStore struct {
	mu      sync.RWMutex
	nodes   map[nodeRef]map[string]any
	edges   map[edgeRef]struct{}
	now     func() time.Time
	hook    func(Statement) error
	pingErr error
	writes  int
	closed  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[nodeRef]map[string]any),
		edges: make(map[edgeRef]struct{}),
		now:   time.Now,
	}
}

// SetWriteHook installs fn to run before every write. A non-nil return fails
// the write without touching the graph.
func (m *MemoryStore) SetWriteHook(fn func(Statement) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// SetPingError makes Ping return err.
func (m *MemoryStore) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// Write applies stmt.
func (m *MemoryStore) Write(_ context.Context, stmt Statement) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Summary{}, errors.WrapTransient(errors.ErrStoreUnavailable, "MemoryStore", "Write", "closed check")
	}
	if m.hook != nil {
		if err := m.hook(stmt); err != nil {
			return Summary{}, err
		}
	}
	m.writes++

	switch stmt.Name {
	case StmtSchema:
		return Summary{}, nil
	case StmtUpsertCustomer:
		return m.upsertCustomer(stmt.Params)
	case StmtUpsertConversation:
		return m.upsertConversation(stmt.Params)
	case StmtUpsertMessage:
		return m.upsertMessage(stmt.Params)
	case StmtUpsertResolution:
		return m.upsertResolution(stmt.Params)
	default:
		return Summary{}, errors.WrapInvalid(
			fmt.Errorf("unknown statement %q", stmt.Name), "MemoryStore", "Write", "statement dispatch")
	}
}

func (m *MemoryStore) upsertCustomer(p map[string]any) (Summary, error) {
	id, err := idParam(p, "customer_id")
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	ref := m.mergeNode(LabelCustomer, "customer_id", id, &s)
	m.set(ref, p, &s, "name", "email", "communication_style", "relationship_stage", "satisfaction_score", "created_at")
	m.nodes[ref]["updated_at"] = m.now()
	s.PropertiesSet++
	s.Records = 1
	return s, nil
}

func (m *MemoryStore) upsertConversation(p map[string]any) (Summary, error) {
	customerID, err := idParam(p, "customer_id")
	if err != nil {
		return Summary{}, err
	}
	id, err := idParam(p, "conversation_id")
	if err != nil {
		return Summary{}, err
	}
	customer := nodeRef{label: LabelCustomer, id: customerID}
	if _, ok := m.nodes[customer]; !ok {
		return Summary{}, nil
	}
	var s Summary
	ref := m.mergeNode(LabelConversation, "conversation_id", id, &s)
	m.set(ref, p, &s, "topic", "status", "satisfaction_rating", "started_at")
	m.mergeEdge(customer, RelHadConversation, ref, &s)
	s.Records = 1
	return s, nil
}

func (m *MemoryStore) upsertMessage(p map[string]any) (Summary, error) {
	convID, err := idParam(p, "conversation_id")
	if err != nil {
		return Summary{}, err
	}
	id, err := idParam(p, "message_id")
	if err != nil {
		return Summary{}, err
	}
	intent, _ := p["intent"].(string)
	if intent == "" {
		return Summary{}, errors.WrapInvalid(errors.ErrMalformedRecord, "MemoryStore", "Write", "intent check")
	}
	conv := nodeRef{label: LabelConversation, id: convID}
	if _, ok := m.nodes[conv]; !ok {
		return Summary{}, nil
	}
	var s Summary
	ref := m.mergeNode(LabelMessage, "message_id", id, &s)
	m.set(ref, p, &s, "content", "message_type", "intent", "sentiment")
	m.mergeEdge(conv, RelContainsMessage, ref, &s)
	topic := m.mergeNode(LabelTopic, "name", intent, &s)
	m.mergeEdge(conv, RelDiscussed, topic, &s)
	s.Records = 1
	return s, nil
}

func (m *MemoryStore) upsertResolution(p map[string]any) (Summary, error) {
	convID, err := idParam(p, "conversation_id")
	if err != nil {
		return Summary{}, err
	}
	conv := nodeRef{label: LabelConversation, id: convID}
	if _, ok := m.nodes[conv]; !ok {
		return Summary{}, nil
	}
	var s Summary
	ref := m.mergeNode(LabelResolution, "conversation_id", convID, &s)
	m.set(ref, p, &s, "strategy", "outcome", "satisfaction")
	m.mergeEdge(conv, RelResolvedWith, ref, &s)
	s.Records = 1
	return s, nil
}

func (m *MemoryStore) mergeNode(label, key string, id any, s *Summary) nodeRef {
	ref := nodeRef{label: label, id: id}
	if _, ok := m.nodes[ref]; !ok {
		m.nodes[ref] = map[string]any{key: id}
		s.NodesCreated++
		s.PropertiesSet++
	}
	return ref
}

func (m *MemoryStore) mergeEdge(from nodeRef, rel string, to nodeRef, s *Summary) {
	e := edgeRef{from: from, rel: rel, to: to}
	if _, ok := m.edges[e]; !ok {
		m.edges[e] = struct{}{}
		s.RelationshipsCreated++
	}
}

func (m *MemoryStore) set(ref nodeRef, p map[string]any, s *Summary, keys ...string) {
	props := m.nodes[ref]
	for _, k := range keys {
		props[k] = p[k]
		s.PropertiesSet++
	}
}

func idParam(p map[string]any, key string) (any, error) {
	switch v := p[key].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		if v != "" {
			return v, nil
		}
	}
	return nil, errors.WrapInvalid(
		fmt.Errorf("%w: parameter %s missing or not an id", errors.ErrMalformedRecord, key),
		"MemoryStore", "Write", "parameter check")
}

// Query answers LabelCountsCypher and RelationshipCountsCypher. Any other
// query is rejected as invalid.
func (m *MemoryStore) Query(_ context.Context, cypher string, _ map[string]any) ([]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch cypher {
	case LabelCountsCypher:
		counts := make(map[string]int64)
		for ref := range m.nodes {
			counts[ref.label]++
		}
		rows := make([]map[string]any, 0, len(counts))
		for label, n := range counts {
			rows = append(rows, map[string]any{"labels": []any{label}, "count": n})
		}
		return rows, nil
	case RelationshipCountsCypher:
		counts := make(map[string]int64)
		for e := range m.edges {
			counts[e.rel]++
		}
		rows := make([]map[string]any, 0, len(counts))
		for rel, n := range counts {
			rows = append(rows, map[string]any{"type": rel, "count": n})
		}
		return rows, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("query not supported in memory: %q", cypher), "MemoryStore", "Query", "query dispatch")
	}
}

// LabelCounts returns the node count per label.
func (m *MemoryStore) LabelCounts(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.WrapTransient(errors.ErrStoreUnavailable, "MemoryStore", "LabelCounts", "closed check")
	}
	counts := make(map[string]int)
	for ref := range m.nodes {
		counts[ref.label]++
	}
	return counts, nil
}

// Ping returns the error set by SetPingError, or an unavailable error after Close.
func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errors.WrapTransient(errors.ErrStoreUnavailable, "MemoryStore", "Ping", "closed check")
	}
	return m.pingErr
}

// Close marks the store closed.
func (m *MemoryStore) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Node returns a copy of the properties of the node with label and identity id.
func (m *MemoryStore) Node(label string, id any) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := id.(int); ok {
		id = int64(n)
	}
	props, ok := m.nodes[nodeRef{label: label, id: id}]
	if !ok {
		return nil, false
	}
	return maps.Clone(props), true
}

// HasEdge reports whether the relationship from -[rel]-> to exists.
func (m *MemoryStore) HasEdge(fromLabel string, fromID any, rel, toLabel string, toID any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := fromID.(int); ok {
		fromID = int64(n)
	}
	if n, ok := toID.(int); ok {
		toID = int64(n)
	}
	_, ok := m.edges[edgeRef{
		from: nodeRef{label: fromLabel, id: fromID},
		rel:  rel,
		to:   nodeRef{label: toLabel, id: toID},
	}]
	return ok
}

// EdgeCount returns the number of relationships of type rel.
func (m *MemoryStore) EdgeCount(rel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for e := range m.edges {
		if e.rel == rel {
			n++
		}
	}
	return n
}

// Writes returns the number of statements applied, including failed MATCHes.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
