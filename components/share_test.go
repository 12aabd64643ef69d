package components

import (
	"reflect"
	"testing"
)

func TestShareState_PutRefreshesExisting(t *testing.T) {
	var s ShareState
	s.Put(7, 1)
	s.Put(7, 5)
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	if s.Entries[0].Tick != 5 {
		t.Errorf("tick = %d, want 5", s.Entries[0].Tick)
	}
}

func TestShareState_FullLedgerEvictsOldest(t *testing.T) {
	var s ShareState
	for i := 0; i < LedgerSlots; i++ {
		s.Put(uint32(i), uint64(10+i))
	}
	s.Put(100, 50)

	if s.Len() != LedgerSlots {
		t.Fatalf("len = %d, want %d", s.Len(), LedgerSlots)
	}
	if s.Find(0) != -1 {
		t.Error("oldest peer 0 should have been evicted")
	}
	if s.Find(100) == -1 {
		t.Error("new peer 100 missing")
	}
}

func TestShareState_Remove(t *testing.T) {
	var s ShareState
	s.Put(1, 1)
	s.Put(2, 2)
	s.Put(3, 3)
	s.Remove(s.Find(1))

	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
	if s.Find(1) != -1 || s.Find(2) == -1 || s.Find(3) == -1 {
		t.Errorf("unexpected ledger contents: %+v", s.Entries[:s.N])
	}
}

func containsPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.String,
		reflect.Interface, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return containsPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if containsPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

func TestShareState_PointerFree(t *testing.T) {
	if containsPointers(reflect.TypeOf(ShareState{})) {
		t.Error("ShareState must not contain pointers")
	}
	if containsPointers(reflect.TypeOf(AgentRecord{})) {
		t.Error("AgentRecord must not contain pointers")
	}
}

func TestMembership_Tiers(t *testing.T) {
	members := []Membership{
		Dormant{ID: 1},
		Simplified{ID: 2},
		Full{ID: 3},
		HeavyPending{ID: 4},
	}
	want := []Tier{TierDormant, TierSimplified, TierFull, TierHeavyPending}
	for i, m := range members {
		if m.Tier() != want[i] {
			t.Errorf("member %d tier = %v, want %v", i, m.Tier(), want[i])
		}
		if m.AgentID() != uint32(i+1) {
			t.Errorf("member %d id = %d", i, m.AgentID())
		}
	}
}
