package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exec-trace/internal/event"
	"github.com/exec-trace/internal/provenance"
)

// AssertTraced asserts that v is backed by event id.
func AssertTraced(t *testing.T, v provenance.Value, id event.ID) {
	t.Helper()
	require.NotNil(t, v)
	if _, unknown := provenance.IsUnknown(v); unknown {
		t.Fatalf("expected value traced to event %d, got %s", id, v)
	}
	assert.Equal(t, id, v.Event(), "value %s", v)
}

// AssertUnknown asserts that v is unknown for reason.
func AssertUnknown(t *testing.T, v provenance.Value, reason provenance.Reason) {
	t.Helper()
	require.NotNil(t, v)
	got, ok := provenance.IsUnknown(v)
	if !ok {
		t.Fatalf("expected unknown value (%s), got %s", reason, v)
	}
	assert.Equal(t, reason, got)
}

// AssertConstant asserts that v is the constant p.
func AssertConstant(t *testing.T, v provenance.Value, p event.Payload) {
	t.Helper()
	c, ok := v.(*provenance.Constant)
	if !ok {
		t.Fatalf("expected constant %s, got %v", p, v)
	}
	assert.Equal(t, p, c.Payload)
}
