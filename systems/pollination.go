package systems

import (
	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
)

// SharePolicy decides when agents broadcast what they know and learns,
// per agent, how much sharing pays off. Credit for a reward goes back only
// to the peers the agent heard from directly.
type SharePolicy struct {
	RecencyWindow   uint64  // Ticks a ledger entry stays creditable
	BroadcastWeight float32 // Surprise bonus added to the share probability
	Temperature     float32
	Alpha           float32 // Learning rate
	Gamma           float32 // Discount
}

// NewSharePolicy builds a policy from config.
func NewSharePolicy(cfg config.PollinationConfig) SharePolicy {
	return SharePolicy{
		RecencyWindow:   uint64(cfg.RecencyWindow),
		BroadcastWeight: float32(cfg.BroadcastWeight),
		Temperature:     float32(cfg.Temperature),
		Alpha:           float32(cfg.Alpha),
		Gamma:           float32(cfg.Gamma),
	}
}

// Probability returns the share probability for a raw value.
func (p SharePolicy) Probability(raw float32) float32 {
	return sigmoid(raw / p.Temperature)
}

// ShouldShare reports whether an agent broadcasts this tick, given a
// uniform draw u in [0, 1).
func (p SharePolicy) ShouldShare(s *components.ShareState, u, surprise float32) bool {
	eff := s.Prob + surprise*p.BroadcastWeight
	if eff > 1 {
		eff = 1
	}
	return u < eff
}

// RegisterShare records that peer shared with the agent at tick.
func (p SharePolicy) RegisterShare(s *components.ShareState, peer uint32, tick uint64) {
	s.Put(peer, tick)
}

// ApplyFeedback credits peer with reward if peer shared within the recency
// window, then forgets the entry. It reports whether an update happened.
func (p SharePolicy) ApplyFeedback(s *components.ShareState, peer uint32, reward float32, tick uint64) bool {
	i := s.Find(peer)
	if i < 0 {
		return false
	}
	sharedAt := s.Entries[i].Tick
	s.Remove(i)
	if tick > sharedAt && tick-sharedAt > p.RecencyWindow {
		return false
	}
	s.Raw += p.Alpha * (reward + p.Gamma*s.Raw - s.Raw)
	s.Prob = p.Probability(s.Raw)
	return true
}

// ApplyFeedbackAll credits every ledger peer with reward and empties the
// ledger. It returns the number of credited peers.
func (p SharePolicy) ApplyFeedbackAll(s *components.ShareState, reward float32, tick uint64) int {
	credited := 0
	for s.N > 0 {
		if p.ApplyFeedback(s, s.Entries[0].Peer, reward, tick) {
			credited++
		}
	}
	return credited
}
