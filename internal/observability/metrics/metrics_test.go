package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("decision", "allowed"),
		attribute.String("user_id", "456"),
		attribute.String("peer", "accs"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "decision" && attrs[1].Key != "decision" {
		t.Fatalf("expected decision to be retained")
	}
	if attrs[0].Key != "peer" && attrs[1].Key != "peer" {
		t.Fatalf("expected peer to be retained")
	}
}

func TestRecordersWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	ctx := context.Background()
	m.RecordAuthorization(ctx, "create", true)
	m.RecordPeerCall(ctx, "ras", "hibernate", 501)
	m.RecordPlanOperation(ctx, "create", "postpaid")

	var nilMetrics *Metrics
	nilMetrics.RecordAuthorization(ctx, "create", false)
}
