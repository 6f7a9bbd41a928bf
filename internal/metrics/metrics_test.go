package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordConnectionStateIsExclusive(t *testing.T) {
	RecordConnectionState("connecting")
	RecordConnectionState("connected")

	if got := testutil.ToFloat64(ConnectionState.WithLabelValues("connected")); got != 1 {
		t.Fatalf("expected connected=1, got %v", got)
	}
	if got := testutil.ToFloat64(ConnectionState.WithLabelValues("connecting")); got != 0 {
		t.Fatalf("expected connecting=0, got %v", got)
	}
}

func TestRecordMutationCounts(t *testing.T) {
	before := testutil.ToFloat64(MutationsTotal.WithLabelValues("acknowledge", "confirmed"))
	RecordMutation("acknowledge", "confirmed", 0.2)
	RecordMutation("acknowledge", "confirmed", 0)
	after := testutil.ToFloat64(MutationsTotal.WithLabelValues("acknowledge", "confirmed"))
	if after-before != 2 {
		t.Fatalf("expected 2 increments, got %v", after-before)
	}
}

func TestRecordersDoNotPanic(t *testing.T) {
	RecordReconnectAttempt()
	RecordQueueDrop()
	RecordQueueDepth(3)
	RecordDelta("alert:updated", "stale")
	RecordSnapshotFetch("gap", false)
	RecordPermissionDenied("delete", "AUDITOR")
	RecordAuditDrop()
}
