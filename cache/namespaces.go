package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/graphsync/errors"
)

// Namespace names. The namespace is always the first segment of a key.
const (
	NSCustomer       = "customer"
	NSDocs           = "docs"
	NSGraph          = "graph"
	NSClassification = "classification"
	NSLLM            = "llm"
	NSKnowledge      = "knowledge"
	NSIntegrity      = "integrity"
	NSSync           = "sync"
)

// Checkpoint names stored in the sync namespace
const (
	CheckpointFull        = "last_full_sync"
	CheckpointIncremental = "last_incremental_sync"
	CheckpointKnowledge   = "last_knowledge_sync"
)

// IntegrityReportKey holds the most recent integrity report.
const IntegrityReportKey = "integrity:report:latest"

// Namespace is one row of the cache policy table. A zero TTL never expires.
type Namespace struct {
	Name        string
	TTL         time.Duration
	Description string
}

// Namespaces is the immutable policy table keyed by namespace name.
type Namespaces struct {
	byName map[string]Namespace
	order  []string
}

// DefaultNamespaces returns the built-in policy table.
func DefaultNamespaces() Namespaces {
	return newNamespaces([]Namespace{
		{Name: NSCustomer, TTL: time.Hour, Description: "customer sessions"},
		{Name: NSDocs, TTL: 30 * time.Minute, Description: "document search results"},
		{Name: NSGraph, TTL: time.Hour, Description: "graph query results"},
		{Name: NSClassification, TTL: time.Hour, Description: "customer classifications"},
		{Name: NSLLM, TTL: 10 * time.Minute, Description: "model responses"},
		{Name: NSKnowledge, TTL: 7 * 24 * time.Hour, Description: "knowledge document metadata"},
		{Name: NSIntegrity, TTL: 5 * time.Minute, Description: "integrity reports"},
		{Name: NSSync, TTL: 0, Description: "sync checkpoints"},
	})
}

func newNamespaces(list []Namespace) Namespaces {
	n := Namespaces{
		byName: make(map[string]Namespace, len(list)),
		order:  make([]string, 0, len(list)),
	}
	for _, ns := range list {
		n.byName[ns.Name] = ns
		n.order = append(n.order, ns.Name)
	}
	return n
}

// WithOverrides returns a copy of the table with the given TTLs replaced.
// Overrides are a start-up decision; there is no per-call TTL.
func (n Namespaces) WithOverrides(ttls map[string]time.Duration) (Namespaces, error) {
	list := n.All()
	for name, ttl := range ttls {
		if ttl < 0 {
			return Namespaces{}, errors.WrapInvalid(
				fmt.Errorf("%w: ttl for %s is negative", errors.ErrInvalidConfig, name),
				"Namespaces", "WithOverrides", "apply ttl override")
		}
		found := false
		for i := range list {
			if list[i].Name == name {
				list[i].TTL = ttl
				found = true
			}
		}
		if !found {
			return Namespaces{}, errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrUnknownNamespace, name),
				"Namespaces", "WithOverrides", "apply ttl override")
		}
	}
	return newNamespaces(list), nil
}

// Lookup returns the namespace with the given name
func (n Namespaces) Lookup(name string) (Namespace, bool) {
	ns, ok := n.byName[name]
	return ns, ok
}

// For returns the namespace that owns key
func (n Namespaces) For(key string) (Namespace, error) {
	name, _, found := strings.Cut(key, separator)
	if !found || name == "" {
		return Namespace{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q has no namespace", errors.ErrInvalidKey, key),
			"Namespaces", "For", "resolve namespace")
	}
	ns, ok := n.byName[name]
	if !ok {
		return Namespace{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnknownNamespace, name),
			"Namespaces", "For", "resolve namespace")
	}
	return ns, nil
}

// All returns every namespace in table order
func (n Namespaces) All() []Namespace {
	out := make([]Namespace, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.byName[name])
	}
	return out
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SessionKey is the key of a customer session.
func SessionKey(sessionID string) string {
	return NSCustomer + ":session:" + sessionID
}

// DocSearchKey is the key of a document search result set.
func DocSearchKey(query, category string, limit int) string {
	return NSDocs + ":search:" + hashHex(fmt.Sprintf("%s:%s:%d", query, category, limit))
}

// GraphKey is the key of a graph query result for a customer. An empty
// variant is omitted.
func GraphKey(queryType string, customerID int64, variant string) string {
	key := NSGraph + ":" + queryType + ":" + strconv.FormatInt(customerID, 10)
	if variant != "" {
		key += ":" + variant
	}
	return key
}

// ClassificationKey is the key of a customer's computed classification.
func ClassificationKey(customerID int64) string {
	return NSClassification + ":customer:" + strconv.FormatInt(customerID, 10)
}

// ResponseKey is the key of a generated response.
func ResponseKey(classification, query, contextSummary string) string {
	return NSLLM + ":response:" + hashHex(classification+":"+query+":"+contextSummary)
}

// KnowledgeDocKey is the key of a processed knowledge document.
func KnowledgeDocKey(filename string) string {
	return NSKnowledge + ":doc:" + filename
}

// CheckpointKey is the key of a named sync checkpoint.
func CheckpointKey(name string) string {
	return NSSync + ":" + name
}

// CustomerPatterns lists every pattern that may hold data derived from a
// customer.
func CustomerPatterns(customerID int64) []string {
	id := strconv.FormatInt(customerID, 10)
	return []string{
		NSCustomer + ":*:" + id,
		NSGraph + ":*:" + id,
		NSClassification + ":*:" + id,
	}
}

// GraphAggregatePatterns lists the cross-customer graph results that a full
// customer sync makes stale.
func GraphAggregatePatterns() []string {
	return []string{
		NSGraph + ":escalation_patterns",
		NSGraph + ":success_strategies",
		NSGraph + ":analytics",
	}
}
