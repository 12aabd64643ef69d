package sim

import (
	"math/rand"

	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/systems"
)

// Clustered placement tuning.
const (
	spawnOctaves     = 3
	spawnPersistence = 0.5
	spawnAttempts    = 32 // Rejection attempts before accepting any point
	villageCandidate = 8  // Candidates drawn per village, densest wins
)

// Spawner places new agents. Uniform mode draws positions evenly over the
// world; clustered mode rejection-samples against a noise density so the
// population forms settlements.
type Spawner struct {
	w, h      float32
	clustered bool
	scale     float64
	scoutFrac float32
	maxSpeed  float32
	noise     opensimplex.Noise
}

// NewSpawner creates a spawner for the configured world.
func NewSpawner(cfg *config.Config, seed int64) *Spawner {
	scale := cfg.World.NoiseScale
	if scale <= 0 {
		scale = max(cfg.World.Width, cfg.World.Height) / 8
	}
	return &Spawner{
		w:         cfg.Derived.WorldW32,
		h:         cfg.Derived.WorldH32,
		clustered: cfg.World.Spawn == "clustered",
		scale:     scale,
		scoutFrac: float32(cfg.Population.ScoutFrac),
		maxSpeed:  float32(cfg.Physics.MaxSpeed),
		noise:     opensimplex.NewNormalized(seed),
	}
}

// Density returns the relative spawn density at (x, y) in [0, 1].
// Uniform spawners return 1 everywhere.
func (sp *Spawner) Density(x, y float32) float64 {
	if !sp.clustered {
		return 1
	}
	n := octaveNoise(sp.noise, float64(x)/sp.scale, float64(y)/sp.scale, spawnOctaves, 1, spawnPersistence)
	// Sharpen so settlements stand out from the background
	return n * n * n
}

// Position draws a spawn point.
func (sp *Spawner) Position(rng *rand.Rand) (float32, float32) {
	var x, y float32
	for attempt := 0; attempt < spawnAttempts; attempt++ {
		x = rng.Float32() * sp.w
		y = rng.Float32() * sp.h
		if !sp.clustered || rng.Float64() < sp.Density(x, y) {
			break
		}
	}
	return x, y
}

// Record builds a fresh full-fidelity agent with the given ID.
func (sp *Spawner) Record(id uint32, rng *rand.Rand) components.AgentRecord {
	x, y := sp.Position(rng)
	role := components.RoleWorker
	if rng.Float32() < sp.scoutFrac {
		role = components.RoleScout
	}
	return components.AgentRecord{
		ID:     id,
		Pos:    components.Position{X: x, Y: y},
		Vel:    components.Velocity{X: (rng.Float32()*2 - 1) * sp.maxSpeed * 0.5, Y: (rng.Float32()*2 - 1) * sp.maxSpeed * 0.5},
		Health: 1,
		Role:   role,
		Share:  components.ShareState{Prob: 0.5},
	}
}

// Locations generates n points. Dense picks the densest of several
// candidates per point, placing villages inside settlements.
func (sp *Spawner) Locations(rng *rand.Rand, n int, dense bool) []systems.Location {
	locs := make([]systems.Location, 0, n)
	for i := 0; i < n; i++ {
		x, y := rng.Float32()*sp.w, rng.Float32()*sp.h
		if dense {
			best := sp.Density(x, y)
			for c := 1; c < villageCandidate; c++ {
				cx, cy := rng.Float32()*sp.w, rng.Float32()*sp.h
				if d := sp.Density(cx, cy); d > best {
					x, y, best = cx, cy, d
				}
			}
		}
		locs = append(locs, systems.Location{X: x, Y: y})
	}
	return locs
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// SpawnFull appends up to n new agents to the full pool with consecutive
// IDs starting at firstID. Returns how many fit.
func (s *Simulation) SpawnFull(n int, firstID uint32) int {
	spawned := 0
	for i := 0; i < n; i++ {
		if _, ok := s.pool.Append(s.spawner.Record(firstID+uint32(i), s.rng)); !ok {
			break
		}
		spawned++
	}
	return spawned
}

// generateLocations places villages, cities and ambush zones when the
// economy is enabled and nothing has been registered.
func (s *Simulation) generateLocations() {
	cfg := s.cfg.Economy
	s.economy.RegisterLocations(
		s.spawner.Locations(s.rng, cfg.Villages, true),
		s.spawner.Locations(s.rng, cfg.Cities, false),
		s.spawner.Locations(s.rng, cfg.AmbushZones, false),
	)
}

// ApplyShock sets the surprise of every full-fidelity agent within radius
// of (x, y) to intensity, clamped to [0, 1]. Frozen agents are skipped.
// Returns the number of agents shocked.
func (s *Simulation) ApplyShock(x, y, radius, intensity float32) int {
	intensity = min(max(intensity, 0), 1)
	r2 := radius * radius
	n := s.pool.Len()
	xs, ys := s.pool.X.Head(n), s.pool.Y.Head(n)
	surprise := s.pool.Surprise.Head(n)
	status := s.pool.Status.Head(n)

	shocked := 0
	for i := range xs {
		if status[i] == components.StatusHeavyPending {
			continue
		}
		dx, dy := xs[i]-x, ys[i]-y
		if dx*dx+dy*dy <= r2 {
			surprise[i] = intensity
			shocked++
		}
	}
	s.collector.RecordShock()
	return shocked
}

// InjectPheromone deposits an external signal into the field. It must not
// be called while a tick is running.
func (s *Simulation) InjectPheromone(x, y float32, ch systems.Channel, amount float32) {
	s.field.Deposit(x, y, ch, amount)
}

// AgentState returns a copy of the agent in the given full-pool slot.
func (s *Simulation) AgentState(slot int) (components.AgentRecord, bool) {
	if slot < 0 || slot >= s.pool.Len() {
		return components.AgentRecord{}, false
	}
	return s.pool.Record(slot), true
}

// FindSlot returns the slot holding agent id by linear scan.
func (s *Simulation) FindSlot(id uint32) (int, bool) {
	for i, v := range s.pool.ID.Head(s.pool.Len()) {
		if v == id {
			return i, true
		}
	}
	return -1, false
}
