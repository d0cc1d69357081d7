package monitor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDecisionMetrics(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordDecision("counter")
	m.RecordDecision("counter")
	m.RecordDecision("accept")
	m.UpdateCounterRate(1180)

	if got := testutil.ToFloat64(m.decisions.WithLabelValues("counter")); got != 2 {
		t.Errorf("Expected decisions[counter] to be 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues("accept")); got != 1 {
		t.Errorf("Expected decisions[accept] to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.counterRate); got != 1180 {
		t.Errorf("Expected last_counter_rate to be 1180, got %f", got)
	}
}

func TestVerificationMetrics(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordVerification("eligible")
	m.RecordVerification("ineligible")
	m.RecordVerification("eligible")
	m.RecordFMCSAError()

	if got := testutil.ToFloat64(m.verifications.WithLabelValues("eligible")); got != 2 {
		t.Errorf("Expected verifications[eligible] to be 2, got %f", got)
	}
	if got := testutil.ToFloat64(m.fmcsaErrors); got != 1 {
		t.Errorf("Expected fmcsa_errors_total to be 1, got %f", got)
	}
}

func TestSessionMetrics(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordEvent("booked")
	m.RecordSessionExpired(3)
	m.UpdateCatalogSize(42)

	if got := testutil.ToFloat64(m.eventsRecorded.WithLabelValues("booked")); got != 1 {
		t.Errorf("Expected events_recorded[booked] to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.sessionsExpired); got != 3 {
		t.Errorf("Expected sessions_expired_total to be 3, got %f", got)
	}
	if got := testutil.ToFloat64(m.catalogSize); got != 42 {
		t.Errorf("Expected catalog_size to be 42, got %f", got)
	}
}

func TestWSMetrics(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordWSSubscribe()
	m.RecordWSSubscribe()
	m.RecordWSUnsubscribe()
	m.RecordWSEvent()

	if got := testutil.ToFloat64(m.wsClients); got != 1 {
		t.Errorf("Expected ws_clients to be 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.wsEvents); got != 1 {
		t.Errorf("Expected ws_events_total to be 1, got %f", got)
	}
}
