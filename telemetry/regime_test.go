package telemetry

import "testing"

func testThresholds() RegimeThresholds {
	return RegimeThresholds{CascadeSurprise: 0.3, CollapseHealth: 0.2, PromotionSurge: 3}
}

func hasRegime(regimes []Regime, typ RegimeType) bool {
	for _, r := range regimes {
		if r.Type == typ {
			return true
		}
	}
	return false
}

func TestRegimeDetector_CascadeAndRecovery(t *testing.T) {
	rd := NewRegimeDetector(10, testThresholds())

	if got := rd.Check(WindowStats{WindowEndTick: 100, MeanSurprise: 0.1, HealthMean: 1, Full: 10}); len(got) != 0 {
		t.Fatalf("calm window produced %v", got)
	}
	if got := rd.Check(WindowStats{WindowEndTick: 200, MeanSurprise: 0.5, HealthMean: 1, Full: 10}); !hasRegime(got, RegimeCascade) {
		t.Error("expected cascade")
	}
	if got := rd.Check(WindowStats{WindowEndTick: 300, MeanSurprise: 0.6, HealthMean: 1, Full: 10}); hasRegime(got, RegimeCascade) {
		t.Error("cascade should fire once")
	}
	if got := rd.Check(WindowStats{WindowEndTick: 400, MeanSurprise: 0.2, HealthMean: 1, Full: 10}); len(got) != 0 {
		t.Error("0.2 is above half the threshold; still cascading")
	}
	if got := rd.Check(WindowStats{WindowEndTick: 500, MeanSurprise: 0.1, HealthMean: 1, Full: 10}); !hasRegime(got, RegimeCascadeRecovery) {
		t.Error("expected cascade recovery")
	}
}

func TestRegimeDetector_Collapse(t *testing.T) {
	rd := NewRegimeDetector(10, testThresholds())

	if got := rd.Check(WindowStats{WindowEndTick: 100, HealthMean: 0.1, Full: 10}); !hasRegime(got, RegimeCollapse) {
		t.Error("expected collapse")
	}
	if got := rd.Check(WindowStats{WindowEndTick: 200, HealthMean: 0.1, Full: 10}); hasRegime(got, RegimeCollapse) {
		t.Error("collapse should not repeat while health stays low")
	}
	rd.Check(WindowStats{WindowEndTick: 300, HealthMean: 0.9, Full: 10})
	if got := rd.Check(WindowStats{WindowEndTick: 400, HealthMean: 0.1, Full: 10}); !hasRegime(got, RegimeCollapse) {
		t.Error("collapse should re-arm after recovery")
	}
	if got := NewRegimeDetector(10, testThresholds()).Check(WindowStats{HealthMean: 0}); len(got) != 0 {
		t.Error("empty pool is not a collapse")
	}
}

func TestRegimeDetector_PromotionSurge(t *testing.T) {
	rd := NewRegimeDetector(10, testThresholds())

	for i := 0; i < 5; i++ {
		rd.Check(WindowStats{WindowEndTick: uint64(i * 100), HealthMean: 1, Full: 10, Promotions: 5})
	}
	got := rd.Check(WindowStats{WindowEndTick: 600, HealthMean: 1, Full: 10, Promotions: 40})
	if !hasRegime(got, RegimePromotionSurge) {
		t.Error("expected promotion surge")
	}
}

func TestRegimeDetector_Quiescent(t *testing.T) {
	rd := NewRegimeDetector(10, testThresholds())

	fired := 0
	for i := 0; i < 20; i++ {
		got := rd.Check(WindowStats{WindowEndTick: uint64(i * 100), HealthMean: 1, Full: 10})
		if hasRegime(got, RegimeQuiescent) {
			fired++
		}
	}
	if fired != 1 {
		t.Errorf("quiescent fired %d times, want 1", fired)
	}
}

func TestRegimeDetector_RecentIsOrdered(t *testing.T) {
	rd := NewRegimeDetector(5, RegimeThresholds{})
	for i := 1; i <= 7; i++ {
		rd.Check(WindowStats{WindowEndTick: uint64(i)})
	}
	recent := rd.recent(3)
	for i, want := range []uint64{5, 6, 7} {
		if recent[i].WindowEndTick != want {
			t.Fatalf("recent = %v", recent)
		}
	}
}
