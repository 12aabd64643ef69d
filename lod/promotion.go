package lod

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Reason says why an agent was handed to the heavy runtime.
type Reason string

const (
	ReasonDensity  Reason = "density"
	ReasonEconomic Reason = "economic"
	ReasonManual   Reason = "manual"
)

// Promotion is one agent waiting for the heavy runtime.
type Promotion struct {
	AgentID uint32
	Ticket  uuid.UUID
	Reason  Reason
	Tick    uint64
}

// LogValue implements slog.LogValuer for structured logging.
func (p Promotion) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("agent", p.AgentID),
		slog.String("ticket", p.Ticket.String()),
		slog.String("reason", string(p.Reason)),
		slog.Uint64("tick", p.Tick),
	)
}

// promotionQueue is the handoff to the heavy runtime. It is the only
// scheduler state other goroutines may touch while a tick runs.
type promotionQueue struct {
	mu      sync.Mutex
	queued  []Promotion
	pending map[uint32]uuid.UUID // Tickets not yet returned
	returns []uint32             // Returned since the last tick
}

func newPromotionQueue() *promotionQueue {
	return &promotionQueue{pending: make(map[uint32]uuid.UUID)}
}

func (q *promotionQueue) push(p Promotion) {
	q.mu.Lock()
	q.queued = append(q.queued, p)
	q.pending[p.AgentID] = p.Ticket
	q.mu.Unlock()
}

// drain returns every queued promotion and empties the queue.
func (q *promotionQueue) drain() []Promotion {
	q.mu.Lock()
	out := q.queued
	q.queued = nil
	q.mu.Unlock()
	return out
}

// ret schedules agent id to rejoin the full tier. Returns false unless id
// holds a ticket.
func (q *promotionQueue) ret(id uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; !ok {
		return false
	}
	delete(q.pending, id)
	q.returns = append(q.returns, id)
	return true
}

// release drops id's ticket and any undrained promotion for it, without
// scheduling a return.
func (q *promotionQueue) release(id uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; !ok {
		return false
	}
	delete(q.pending, id)
	kept := q.queued[:0]
	for _, p := range q.queued {
		if p.AgentID != id {
			kept = append(kept, p)
		}
	}
	q.queued = kept
	return true
}

// takeReturns swaps out the returned IDs into dst.
func (q *promotionQueue) takeReturns(dst []uint32) []uint32 {
	q.mu.Lock()
	dst = append(dst, q.returns...)
	q.returns = q.returns[:0]
	q.mu.Unlock()
	return dst
}

func (q *promotionQueue) ticket(id uint32) uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending[id]
}

func (q *promotionQueue) outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
