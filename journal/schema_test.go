package journal

import "testing"

func TestValidateEventFields(t *testing.T) {
	err := ValidateEventFields("booked", map[string]interface{}{
		"load_id":        "L-1001",
		"agreed_rate":    1180.0,
		"loadboard_rate": 1400.0,
		"sentiment":      "positive",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = ValidateEventFields("booked", map[string]interface{}{
		"load_id": "L-1001",
	})
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
}

func TestValidateEventFields_UnknownEventPasses(t *testing.T) {
	if err := ValidateEventFields("call_start", nil); err != nil {
		t.Fatalf("unknown event should pass, got: %v", err)
	}
}

func TestKnownEvents(t *testing.T) {
	names := KnownEvents()
	if len(names) == 0 {
		t.Fatalf("expected non-empty schema list")
	}
	found := false
	for _, n := range names {
		if n == "no-agreement" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no-agreement not found in schemas")
	}
}
