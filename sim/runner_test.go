package sim

import (
	"testing"

	"rate-desk-go/negotiation"
)

type stubRecorder struct {
	events []string
	data   []map[string]interface{}
}

func (s *stubRecorder) Record(event string, data map[string]interface{}) (string, error) {
	s.events = append(s.events, event)
	s.data = append(s.data, data)
	return "sim", nil
}

func testLoad() negotiation.LoadContext {
	return negotiation.LoadContext{LoadID: "L-1001", BoardRate: 1400, Miles: 500, EquipmentType: "Dry Van"}
}

func TestRunnerReplaysToBooked(t *testing.T) {
	r, err := BuildRunner(RunnerConfig{SessionID: "s-sim"})
	if err != nil {
		t.Fatalf("build runner err: %v", err)
	}

	// 1100 -> 还价 1180；对方接 1180。
	res, err := r.Run(testLoad(), []float64{1100, 1180})
	if err != nil {
		t.Fatalf("run err: %v", err)
	}
	if res.Outcome != negotiation.Accept {
		t.Fatalf("expected accept, got %s", res.Outcome)
	}
	if res.AgreedRate != 1180 {
		t.Fatalf("expected agreed 1180, got %v", res.AgreedRate)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(res.Steps))
	}
	if res.Steps[0].Decision.Kind != negotiation.Counter {
		t.Fatalf("round 1 should counter, got %s", res.Steps[0].Decision.Kind)
	}
}

func TestRunnerExhaustsRounds(t *testing.T) {
	r, err := BuildRunner(RunnerConfig{})
	if err != nil {
		t.Fatalf("build runner err: %v", err)
	}

	res, err := r.Run(testLoad(), []float64{1100, 1100, 1100, 1100})
	if err != nil {
		t.Fatalf("run err: %v", err)
	}
	// 第 3 轮一口价，第 4 轮复述后仍未成交。
	if res.Outcome != negotiation.CounterFinal {
		t.Fatalf("expected counter-final, got %s", res.Outcome)
	}
	last := res.Steps[len(res.Steps)-1]
	if last.Decision.CounterRate <= 0 {
		t.Fatalf("final counter should carry a rate")
	}
}

func TestRunnerRecordsJournal(t *testing.T) {
	rec := &stubRecorder{}
	r, err := BuildRunner(RunnerConfig{SessionID: "s-rec", Journal: rec})
	if err != nil {
		t.Fatalf("build runner err: %v", err)
	}

	if _, err := r.Run(testLoad(), []float64{1100, 1180}); err != nil {
		t.Fatalf("run err: %v", err)
	}

	// 每轮的双边出价 + 终局事件。
	var offers, finals int
	for i, ev := range rec.events {
		switch ev {
		case "offer":
			offers++
		case "booked":
			finals++
			if rec.data[i]["agreed_rate"] != 1180.0 {
				t.Fatalf("final event agreed_rate = %v", rec.data[i]["agreed_rate"])
			}
		}
		if rec.data[i]["session_id"] != "s-rec" {
			t.Fatalf("session id missing on %s", ev)
		}
	}
	if offers != 3 { // carrier 1100, agent 1180, carrier 1180（accept 无还价）
		t.Fatalf("expected 3 offer rows, got %d", offers)
	}
	if finals != 1 {
		t.Fatalf("expected 1 final event, got %d", finals)
	}
}

func TestRunnerEmptyScript(t *testing.T) {
	r, _ := BuildRunner(RunnerConfig{})
	if _, err := r.Run(testLoad(), nil); err == nil {
		t.Fatalf("expected error on empty script")
	}
}
