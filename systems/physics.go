package systems

import (
	"math/rand"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/store"
	"github.com/pthm-cable/swarm/workers"
)

// hoardingPerResource scales the hoarding signal left by carriers.
const hoardingPerResource = 0.1

// KernelParams holds the movement and contagion constants.
type KernelParams struct {
	PerceptionRadius float32
	MaxSpeed         float32
	Momentum         float32
	Cohesion         float32
	Separation       float32
	TrailWeight      float32
	DangerWeight     float32
	Jitter           float32
	SurpriseDecay    float32
	Contagion        float32
	MaxNeighbors     int // 0 = every neighbour in radius

	DepositStride           int
	TrailDeposit            float32
	DangerDeposit           float32
	NoveltyDeposit          float32
	DangerSurpriseThreshold float32
	HearingRadius           float32

	WorldW, WorldH float32
}

// NewKernelParams builds kernel parameters from config.
func NewKernelParams(cfg *config.Config) KernelParams {
	ph := cfg.Physics
	return KernelParams{
		PerceptionRadius:        float32(ph.PerceptionRadius),
		MaxSpeed:                float32(ph.MaxSpeed),
		Momentum:                float32(ph.Momentum),
		Cohesion:                float32(ph.Cohesion),
		Separation:              float32(ph.Separation),
		TrailWeight:             float32(ph.TrailWeight),
		DangerWeight:            float32(ph.DangerWeight),
		Jitter:                  float32(ph.Jitter),
		SurpriseDecay:           float32(ph.SurpriseDecay),
		Contagion:               float32(ph.Contagion),
		MaxNeighbors:            ph.MaxNeighbors,
		DepositStride:           ph.DepositStride,
		TrailDeposit:            float32(ph.TrailDeposit),
		DangerDeposit:           float32(ph.DangerDeposit),
		NoveltyDeposit:          float32(ph.NoveltyDeposit),
		DangerSurpriseThreshold: float32(ph.DangerSurpriseThreshold),
		HearingRadius:           float32(cfg.Economy.HearingRadius),
		WorldW:                  cfg.Derived.WorldW32,
		WorldH:                  cfg.Derived.WorldH32,
	}
}

// KernelScratch holds per-worker reusable state.
type KernelScratch struct {
	Candidates []uint32
	Rng        *rand.Rand
	Promote    []uint32 // Slots flagged for promotion this tick
	Trades     int
}

// Kernel advances every full-fidelity agent by one tick: neighbour
// perception, surprise contagion, steering, and in the economic variant,
// harvest, trade and information sharing.
type Kernel struct {
	Params  KernelParams
	Index   *SpatialHash
	Field   *SignalField
	Economy *Economy // nil disables the economic variant
	Policy  SharePolicy
	Scratch []KernelScratch

	rewards   *store.Column[float32]
	broadcast *store.Column[uint8]
}

// NewKernel creates a kernel for a pool of the given capacity with one
// scratch per worker. Each worker's RNG is derived from seed.
func NewKernel(params KernelParams, index *SpatialHash, field *SignalField, econ *Economy, policy SharePolicy, capacity, numWorkers int, seed int64) *Kernel {
	k := &Kernel{
		Params:  params,
		Index:   index,
		Field:   field,
		Economy: econ,
		Policy:  policy,
		Scratch: make([]KernelScratch, numWorkers),
	}
	for i := range k.Scratch {
		k.Scratch[i] = KernelScratch{
			Candidates: make([]uint32, 0, 128),
			Rng:        rand.New(rand.NewSource(seed + int64(i)*7919)),
		}
	}
	if econ != nil {
		k.rewards = store.Allocate[float32](capacity)
		k.broadcast = store.Allocate[uint8](capacity)
	}
	return k
}

// Step runs the kernel over every live agent in p. All reads see the
// tick-start state; new kinematics go to next, which is then swapped in.
// The index must have been rebuilt from p's current positions.
func (k *Kernel) Step(p *store.Pool, next *store.Kinematics, tick uint64, r workers.Runner) {
	for i := range k.Scratch {
		k.Scratch[i].Promote = k.Scratch[i].Promote[:0]
		k.Scratch[i].Trades = 0
	}

	n := p.Len()
	r.Run(n, func(lo, hi, worker int) {
		k.stepRange(p, next, lo, hi, &k.Scratch[worker])
	})

	if k.Economy != nil {
		r.Run(n, func(lo, hi, worker int) {
			k.shareRange(p, tick, lo, hi, &k.Scratch[worker])
		})
	}

	p.SwapKinematics(next)
}

func (k *Kernel) stepRange(p *store.Pool, next *store.Kinematics, lo, hi int, scratch *KernelScratch) {
	prm := &k.Params
	xs, ys := p.X.Slice(), p.Y.Slice()
	vxs, vys := p.VX.Slice(), p.VY.Slice()
	surprise := p.Surprise.Slice()
	status := p.Status.Slice()
	nx, ny := next.X.Slice(), next.Y.Slice()
	nvx, nvy := next.VX.Slice(), next.VY.Slice()
	ns := next.Surprise.Slice()

	r2 := prm.PerceptionRadius * prm.PerceptionRadius
	maxNeighbors := prm.MaxNeighbors
	if maxNeighbors <= 0 {
		maxNeighbors = int(^uint(0) >> 1)
	}

	for i := lo; i < hi; i++ {
		if status[i] == components.StatusHeavyPending {
			nx[i], ny[i] = xs[i], ys[i]
			nvx[i], nvy[i] = vxs[i], vys[i]
			ns[i] = surprise[i]
			if k.Economy != nil {
				k.rewards.Set(i, 0)
				k.broadcast.Set(i, 0)
			}
			continue
		}

		px, py := xs[i], ys[i]
		scratch.Candidates = k.Index.QueryNeighborsInto(scratch.Candidates[:0], i, px, py, prm.PerceptionRadius)

		var sumX, sumY, sepX, sepY, maxS float32
		count := 0
		for _, j := range scratch.Candidates {
			dx, dy := px-xs[j], py-ys[j]
			d2 := dx*dx + dy*dy
			if d2 > r2 {
				continue
			}
			count++
			sumX += xs[j]
			sumY += ys[j]
			if d2 > 1e-6 {
				sepX += dx / d2
				sepY += dy / d2
			}
			if surprise[j] > maxS {
				maxS = surprise[j]
			}
			if count >= maxNeighbors {
				break
			}
		}

		// Own surprise fades; neighbours' surprise spreads
		s := max(surprise[i]*prm.SurpriseDecay, prm.Contagion*maxS)

		fx := prm.Momentum * vxs[i]
		fy := prm.Momentum * vys[i]
		if count > 0 {
			inv := 1 / float32(count)
			fx += prm.Cohesion*(sumX*inv-px) + prm.Separation*sepX
			fy += prm.Cohesion*(sumY*inv-py) + prm.Separation*sepY
		}
		tgx, tgy := k.Field.Gradient(px, py, ChannelTrail)
		dgx, dgy := k.Field.Gradient(px, py, ChannelDanger)
		fx += prm.TrailWeight*tgx - prm.DangerWeight*dgx
		fy += prm.TrailWeight*tgy - prm.DangerWeight*dgy
		fx += (scratch.Rng.Float32()*2 - 1) * prm.Jitter
		fy += (scratch.Rng.Float32()*2 - 1) * prm.Jitter

		if speed := velocityMagnitude(fx, fy); speed > prm.MaxSpeed {
			scale := prm.MaxSpeed / speed
			fx *= scale
			fy *= scale
		}

		newX := clampFloat(px+fx, 0, prm.WorldW)
		newY := clampFloat(py+fy, 0, prm.WorldH)
		nx[i], ny[i] = newX, newY
		nvx[i], nvy[i] = fx, fy
		ns[i] = s

		if k.Economy != nil {
			k.interact(p, i, newX, newY, s, scratch)
		}
	}
}

// interact runs the economic step for slot i. It only touches slot i.
func (k *Kernel) interact(p *store.Pool, i int, x, y, surprise float32, scratch *KernelScratch) {
	res := &p.Resources.Slice()[i]
	health := &p.Health.Slice()[i]
	out := k.Economy.Interact(x, y, p.Role.At(i), surprise, res, health, scratch.Rng.Float32())

	k.rewards.Set(i, out.Reward)
	if out.Traded {
		scratch.Trades++
	}
	if out.Promote {
		scratch.Promote = append(scratch.Promote, uint32(i))
	}

	var b uint8
	if k.Policy.ShouldShare(&p.Share.Slice()[i], scratch.Rng.Float32(), surprise) {
		b = 1
	}
	k.broadcast.Set(i, b)
}

// shareRange credits last tick's sources with this tick's reward, then
// records every broadcasting neighbour within hearing range. It reads
// broadcast flags written by stepRange and tick-start positions.
func (k *Kernel) shareRange(p *store.Pool, tick uint64, lo, hi int, scratch *KernelScratch) {
	xs, ys := p.X.Slice(), p.Y.Slice()
	ids := p.ID.Slice()
	status := p.Status.Slice()
	share := p.Share.Slice()
	rewards := k.rewards.Slice()
	broadcast := k.broadcast.Slice()
	hr := k.Params.HearingRadius
	hr2 := hr * hr

	for i := lo; i < hi; i++ {
		if status[i] == components.StatusHeavyPending {
			continue
		}
		st := &share[i]
		k.Policy.ApplyFeedbackAll(st, rewards[i], tick)

		px, py := xs[i], ys[i]
		scratch.Candidates = k.Index.QueryNeighborsInto(scratch.Candidates[:0], i, px, py, hr)
		for _, j := range scratch.Candidates {
			if broadcast[j] == 0 {
				continue
			}
			if distanceSq(px, py, xs[j], ys[j]) > hr2 {
				continue
			}
			k.Policy.RegisterShare(st, ids[j], tick)
		}
	}
}

// Deposit writes this tick's agent signals into the field. Only one agent
// in DepositStride deposits per tick, rotating with tick so every agent
// contributes over a full cycle. Runs sequentially.
func (k *Kernel) Deposit(p *store.Pool, tick uint64) {
	prm := &k.Params
	stride := max(prm.DepositStride, 1)
	n := p.Len()
	xs, ys := p.X.Slice(), p.Y.Slice()
	surprise := p.Surprise.Slice()
	roles := p.Role.Slice()
	status := p.Status.Slice()

	for i := int(tick % uint64(stride)); i < n; i += stride {
		if status[i] == components.StatusHeavyPending {
			continue
		}
		x, y := xs[i], ys[i]
		k.Field.Deposit(x, y, ChannelTrail, prm.TrailDeposit)
		if s := surprise[i]; s > prm.DangerSurpriseThreshold {
			k.Field.Deposit(x, y, ChannelDanger, prm.DangerDeposit*s)
		}
		if roles[i] == components.RoleScout {
			k.Field.Deposit(x, y, ChannelNovelty, prm.NoveltyDeposit)
		}
		if k.Economy != nil {
			if res := p.Resources.At(i); res > 1 {
				k.Field.Deposit(x, y, ChannelHoarding, res*hoardingPerResource)
			}
		}
	}

	if k.Economy != nil {
		k.Economy.DepositSources(k.Field)
	}
}

// Promotions returns the slots flagged during the last Step, in worker order.
func (k *Kernel) Promotions(dst []uint32) []uint32 {
	for i := range k.Scratch {
		dst = append(dst, k.Scratch[i].Promote...)
	}
	return dst
}

// Trades returns the number of trades during the last Step.
func (k *Kernel) Trades() int {
	total := 0
	for i := range k.Scratch {
		total += k.Scratch[i].Trades
	}
	return total
}

// Bytes returns the mapped size of the kernel's per-agent buffers.
func (k *Kernel) Bytes() int64 {
	if k.rewards == nil {
		return 0
	}
	return k.rewards.Bytes() + k.broadcast.Bytes()
}

// Close releases the kernel's per-agent buffers.
func (k *Kernel) Close() {
	k.rewards.Free()
	k.broadcast.Free()
}
