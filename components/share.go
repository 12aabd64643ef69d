package components

// LedgerSlots bounds how many recent information sources an agent remembers.
const LedgerSlots = 8

// ShareEntry records that Peer shared information with the owner at Tick.
type ShareEntry struct {
	Peer uint32
	Tick uint64
}

// ShareState is the per-agent information-sharing state. It holds no
// pointers so a column of them can live in anonymous mapped memory.
type ShareState struct {
	Raw     float32 // Learned value of sharing
	Prob    float32 // Sigmoid of Raw at the policy temperature
	N       uint32  // Live entries in Entries[:N]
	Entries [LedgerSlots]ShareEntry
}

// Find returns the ledger index of peer, or -1.
func (s *ShareState) Find(peer uint32) int {
	for i := 0; i < int(s.N); i++ {
		if s.Entries[i].Peer == peer {
			return i
		}
	}
	return -1
}

// Put records a share from peer at tick. An existing entry is refreshed;
// a full ledger evicts its oldest entry.
func (s *ShareState) Put(peer uint32, tick uint64) {
	if i := s.Find(peer); i >= 0 {
		s.Entries[i].Tick = tick
		return
	}
	if int(s.N) < LedgerSlots {
		s.Entries[s.N] = ShareEntry{Peer: peer, Tick: tick}
		s.N++
		return
	}
	oldest := 0
	for i := 1; i < LedgerSlots; i++ {
		if s.Entries[i].Tick < s.Entries[oldest].Tick {
			oldest = i
		}
	}
	s.Entries[oldest] = ShareEntry{Peer: peer, Tick: tick}
}

// Remove deletes entry i by swapping in the last live entry.
func (s *ShareState) Remove(i int) {
	last := int(s.N) - 1
	s.Entries[i] = s.Entries[last]
	s.Entries[last] = ShareEntry{}
	s.N--
}

// Len returns the number of live ledger entries.
func (s *ShareState) Len() int {
	return int(s.N)
}
