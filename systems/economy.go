package systems

import (
	"github.com/pthm-cable/swarm/components"
	"github.com/pthm-cable/swarm/config"
)

// Location is a fixed point of interest in world coordinates.
type Location struct {
	X, Y float32
}

// Economy holds the points of interest and the harvest/trade rules.
type Economy struct {
	Villages []Location // Workers harvest here
	Cities   []Location // Resources are sold for health here
	Ambush   []Location // Constant danger sources

	InteractRadius    float32
	HarvestAmount     float32
	SellHeal          float32
	PromotionChance   float32
	TradeReward       float32
	IdlePenalty       float32
	SalienceThreshold float32
	AmbushDeposit     float32
}

// NewEconomy creates an economy with no locations.
func NewEconomy(cfg config.EconomyConfig) *Economy {
	return &Economy{
		InteractRadius:    float32(cfg.InteractRadius),
		HarvestAmount:     float32(cfg.HarvestAmount),
		SellHeal:          float32(cfg.SellHeal),
		PromotionChance:   float32(cfg.PromotionChance),
		TradeReward:       float32(cfg.TradeReward),
		IdlePenalty:       float32(cfg.IdlePenalty),
		SalienceThreshold: float32(cfg.SalienceThreshold),
		AmbushDeposit:     float32(cfg.AmbushDeposit),
	}
}

// RegisterLocations replaces all points of interest.
func (e *Economy) RegisterLocations(villages, cities, ambush []Location) {
	e.Villages = villages
	e.Cities = cities
	e.Ambush = ambush
}

// near reports whether (x, y) lies within the interaction box of any location.
func (e *Economy) near(locs []Location, x, y float32) bool {
	r := e.InteractRadius
	for _, l := range locs {
		dx, dy := x-l.X, y-l.Y
		if dx < r && dx > -r && dy < r && dy > -r {
			return true
		}
	}
	return false
}

// Outcome is the result of one agent's economic step.
type Outcome struct {
	Reward  float32
	Traded  bool
	Promote bool
}

// Interact applies harvest and trade for an agent at (x, y). resources and
// health belong to the agent and are updated in place. u is a uniform draw
// used for the promotion roll.
func (e *Economy) Interact(x, y float32, role components.Role, surprise float32, resources, health *float32, u float32) Outcome {
	var out Outcome

	if role == components.RoleWorker && e.near(e.Villages, x, y) {
		*resources += e.HarvestAmount
	}

	if *resources > 0 && e.near(e.Cities, x, y) {
		*resources = max(*resources-1, 0)
		*health = min(*health+e.SellHeal, 1)
		out.Traded = true
		out.Promote = u < e.PromotionChance
	}

	if out.Traded || surprise > e.SalienceThreshold {
		out.Reward = e.TradeReward
	} else {
		out.Reward = e.IdlePenalty
	}
	return out
}

// DepositSources writes the static emitters into the field: villages on the
// resource channel, cities on the alliance channel and ambush zones on the
// danger channel.
func (e *Economy) DepositSources(f *SignalField) {
	for _, v := range e.Villages {
		f.Deposit(v.X, v.Y, ChannelResource, e.HarvestAmount)
	}
	for _, c := range e.Cities {
		f.Deposit(c.X, c.Y, ChannelAlliance, e.SellHeal)
	}
	for _, a := range e.Ambush {
		f.Deposit(a.X, a.Y, ChannelDanger, e.AmbushDeposit)
	}
}
