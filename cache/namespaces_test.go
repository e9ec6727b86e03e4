package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/graphsync/errors"
)

func TestDefaultNamespaces(t *testing.T) {
	want := map[string]time.Duration{
		NSCustomer:       time.Hour,
		NSDocs:           30 * time.Minute,
		NSGraph:          time.Hour,
		NSClassification: time.Hour,
		NSLLM:            10 * time.Minute,
		NSKnowledge:      7 * 24 * time.Hour,
		NSIntegrity:      5 * time.Minute,
		NSSync:           0,
	}

	namespaces := DefaultNamespaces()
	assert.Len(t, namespaces.All(), len(want))
	for name, ttl := range want {
		ns, ok := namespaces.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, ttl, ns.TTL, name)
	}
}

func TestNamespaces_For(t *testing.T) {
	namespaces := DefaultNamespaces()

	ns, err := namespaces.For(GraphKey("similar_customers", 42, ""))
	require.NoError(t, err)
	assert.Equal(t, NSGraph, ns.Name)

	_, err = namespaces.For("session:42")
	assert.ErrorIs(t, err, errors.ErrUnknownNamespace)

	_, err = namespaces.For("nonamespace")
	assert.ErrorIs(t, err, errors.ErrInvalidKey)
}

func TestNamespaces_WithOverrides(t *testing.T) {
	base := DefaultNamespaces()

	overridden, err := base.WithOverrides(map[string]time.Duration{NSGraph: 2 * time.Hour})
	require.NoError(t, err)
	graph, _ := overridden.Lookup(NSGraph)
	assert.Equal(t, 2*time.Hour, graph.TTL)

	original, _ := base.Lookup(NSGraph)
	assert.Equal(t, time.Hour, original.TTL, "base table is unchanged")

	_, err = base.WithOverrides(map[string]time.Duration{"sessions": time.Hour})
	assert.ErrorIs(t, err, errors.ErrUnknownNamespace)

	_, err = base.WithOverrides(map[string]time.Duration{NSDocs: -time.Second})
	assert.True(t, errors.IsInvalid(err))
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "customer:session:s-1", SessionKey("s-1"))
	assert.Equal(t, "graph:similar_customers:42", GraphKey("similar_customers", 42, ""))
	assert.Equal(t, "graph:similar_customers:42:5", GraphKey("similar_customers", 42, "5"))
	assert.Equal(t, "classification:customer:42", ClassificationKey(42))
	assert.Equal(t, "knowledge:doc:faq.md", KnowledgeDocKey("faq.md"))
	assert.Equal(t, "sync:last_full_sync", CheckpointKey(CheckpointFull))

	docs := DocSearchKey("refund policy", "billing", 5)
	assert.Regexp(t, `^docs:search:[0-9a-f]{64}$`, docs)
	assert.Equal(t, docs, DocSearchKey("refund policy", "billing", 5))
	assert.NotEqual(t, docs, DocSearchKey("refund policy", "billing", 10))

	response := ResponseKey("champion", "where is my order", "ctx")
	assert.Regexp(t, `^llm:response:[0-9a-f]{64}$`, response)
	assert.NotEqual(t, response, ResponseKey("at_risk", "where is my order", "ctx"))
}

func TestCustomerPatterns(t *testing.T) {
	assert.Equal(t, []string{
		"customer:*:42",
		"graph:*:42",
		"classification:*:42",
	}, CustomerPatterns(42))

	for _, pattern := range append(CustomerPatterns(7), GraphAggregatePatterns()...) {
		_, err := ParsePattern(pattern)
		assert.NoError(t, err, pattern)
	}
}
