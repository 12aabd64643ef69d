package systems

import (
	"math"
	"testing"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
)

func defaultPolicy() SharePolicy {
	return NewSharePolicy(config.Default().Pollination)
}

func TestSharePolicy_Defaults(t *testing.T) {
	p := defaultPolicy()
	if p.RecencyWindow != 10 || p.BroadcastWeight != 0.5 || p.Temperature != 1 || p.Alpha != 0.1 || p.Gamma != 0.9 {
		t.Errorf("unexpected defaults: %+v", p)
	}
	if got := p.Probability(0); got != 0.5 {
		t.Errorf("Probability(0) = %v, want 0.5", got)
	}
}

func TestSharePolicy_SingleTDStep(t *testing.T) {
	p := defaultPolicy()
	s := components.ShareState{Prob: 0.5}
	p.RegisterShare(&s, 5, 100)

	if !p.ApplyFeedback(&s, 5, 1.0, 105) {
		t.Fatal("feedback within window should apply")
	}
	if math.Abs(float64(s.Raw)-0.1) > 1e-6 {
		t.Errorf("raw = %v, want 0.1", s.Raw)
	}
	if s.Prob <= 0.5 {
		t.Errorf("prob = %v, want > 0.5", s.Prob)
	}
	if s.Find(5) != -1 {
		t.Error("entry should be forgotten after feedback")
	}
}

func TestSharePolicy_StaleFeedbackDiscarded(t *testing.T) {
	p := defaultPolicy()
	var s components.ShareState
	p.RegisterShare(&s, 5, 100)

	if p.ApplyFeedback(&s, 5, 1.0, 111) {
		t.Error("feedback outside the window should not apply")
	}
	if s.Raw != 0 {
		t.Errorf("raw = %v, want 0", s.Raw)
	}
	if s.Len() != 0 {
		t.Error("stale entry should still be removed")
	}
}

func TestSharePolicy_UnattributedFeedbackDiscarded(t *testing.T) {
	p := defaultPolicy()
	var s components.ShareState
	p.RegisterShare(&s, 5, 100)

	if p.ApplyFeedback(&s, 6, 1.0, 101) {
		t.Error("feedback for an unknown peer should not apply")
	}
	if s.Raw != 0 || s.Len() != 1 {
		t.Errorf("state changed: raw=%v len=%d", s.Raw, s.Len())
	}
}

func TestSharePolicy_FeedbackAllEmptiesLedger(t *testing.T) {
	p := defaultPolicy()
	var s components.ShareState
	p.RegisterShare(&s, 1, 10)
	p.RegisterShare(&s, 2, 10)
	p.RegisterShare(&s, 3, 1) // stale at tick 12

	if got := p.ApplyFeedbackAll(&s, -0.1, 12); got != 2 {
		t.Errorf("credited %d peers, want 2", got)
	}
	if s.Len() != 0 {
		t.Errorf("ledger len = %d, want 0", s.Len())
	}
	if s.Raw >= 0 {
		t.Errorf("negative reward should lower raw, got %v", s.Raw)
	}
}

func TestSharePolicy_SurpriseNeverSuppresses(t *testing.T) {
	p := defaultPolicy()
	for _, prob := range []float32{0, 0.2, 0.5, 0.9, 1} {
		s := components.ShareState{Prob: prob}
		for u := float32(0); u < 1; u += 0.01 {
			if p.ShouldShare(&s, u, 0) && !p.ShouldShare(&s, u, 1) {
				t.Fatalf("surprise suppressed sharing at prob=%v u=%v", prob, u)
			}
		}
	}
}

func TestSharePolicy_SurpriseBoost(t *testing.T) {
	p := defaultPolicy()
	s := components.ShareState{Prob: 0.2}
	if p.ShouldShare(&s, 0.5, 0) {
		t.Error("u=0.5 should not share at prob 0.2")
	}
	if !p.ShouldShare(&s, 0.5, 1) {
		t.Error("surprise 1 should lift effective probability to 0.7")
	}
	s.Prob = 0.9
	if !p.ShouldShare(&s, 0.999, 1) {
		t.Error("effective probability should cap at 1")
	}
}

func TestSharePolicy_Temperature(t *testing.T) {
	p := defaultPolicy()
	hot := p
	hot.Temperature = 10
	if hot.Probability(1) >= p.Probability(1) {
		t.Error("higher temperature should flatten the sigmoid")
	}
}
