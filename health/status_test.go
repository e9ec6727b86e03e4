package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Predicates(t *testing.T) {
	tests := []struct {
		status    string
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{StatusHealthy, true, false, false},
		{StatusDegraded, false, true, false},
		{StatusUnhealthy, false, false, true},
		{"", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			s := Status{Status: tt.status}
			assert.Equal(t, tt.healthy, s.IsHealthy())
			assert.Equal(t, tt.degraded, s.IsDegraded())
			assert.Equal(t, tt.unhealthy, s.IsUnhealthy())
		})
	}
}

func TestStatus_WithSubStatusDoesNotShare(t *testing.T) {
	base := NewHealthy("graphsync", "ok").WithSubStatus(NewHealthy("graph", "ok"))
	a := base.WithSubStatus(NewHealthy("cache", "ok"))
	b := base.WithSubStatus(NewUnhealthy("relational", "down"))

	assert.Len(t, base.SubStatuses, 1)
	assert.Equal(t, "cache", a.SubStatuses[1].Component)
	assert.Equal(t, "relational", b.SubStatuses[1].Component)
}

func TestCheck(t *testing.T) {
	ok := Check(context.Background(), "graph", func(context.Context) error { return nil })
	assert.True(t, ok.IsHealthy())
	assert.Equal(t, "graph", ok.Component)

	failed := Check(context.Background(), "relational", func(context.Context) error {
		return errors.New("dial tcp 10.0.0.5:5432: connection refused")
	})
	assert.True(t, failed.IsUnhealthy())
	assert.False(t, failed.Healthy)
	assert.NotContains(t, failed.Message, "10.0.0.5")
	assert.Contains(t, failed.Message, "connection refused")
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		absent  string
		present string
	}{
		{"postgres dsn", "open postgres://app:hunter2@db:5432/crm failed", "hunter2", "[URL]"},
		{"bolt uri", "cannot reach bolt://neo4j.internal:7687", "neo4j.internal", "[URL]"},
		{"nats url", "nats: no servers available for nats://10.1.1.1:4222", "10.1.1.1", "[URL]"},
		{"file path", "open /etc/graphsync/config.json: permission denied", "/etc/graphsync", "[PATH]"},
		{"password", "auth failed password=hunter2", "hunter2", "[REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeErrorMessage(tt.in)
			assert.NotContains(t, got, tt.absent)
			assert.Contains(t, got, tt.present)
		})
	}

	assert.Empty(t, sanitizeErrorMessage(""))
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"degraded wins over healthy", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("graphsync", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
			assert.WithinDuration(t, time.Now(), got.Timestamp, time.Second)
		})
	}
}
