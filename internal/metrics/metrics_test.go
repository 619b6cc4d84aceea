package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSendResult(t *testing.T) {
	before := testutil.ToFloat64(outboxResults.WithLabelValues("sent"))
	RecordSendResult("sent")
	RecordSendResult("failed")
	if got := testutil.ToFloat64(outboxResults.WithLabelValues("sent")); got != before+1 {
		t.Errorf("sent = %v, want %v", got, before+1)
	}
}

func TestSetPending(t *testing.T) {
	SetPending(3)
	if got := testutil.ToFloat64(outboxPending); got != 3 {
		t.Errorf("pending = %v, want 3", got)
	}
	SetPending(0)
}

func TestSetOnline(t *testing.T) {
	SetOnline(true)
	if got := testutil.ToFloat64(connectivityOnline); got != 1 {
		t.Errorf("online = %v, want 1", got)
	}
	SetOnline(false)
	if got := testutil.ToFloat64(connectivityOnline); got != 0 {
		t.Errorf("online = %v, want 0", got)
	}
}

func TestRecordersDoNotPanic(t *testing.T) {
	RecordQueued()
	RecordSyncPass(120 * time.Millisecond)
	RecordReconnect("sse")
	RecordRealtimeEvent("notification")
	RecordFetch("ok")
	SetUnread(4)
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordQueued()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "outpost_outbox_queued_total") {
		t.Error("metrics output missing outpost_outbox_queued_total")
	}
}
